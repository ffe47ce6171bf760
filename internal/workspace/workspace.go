// Package workspace 管理流水线的文件工作区
// 中间产物（岗位分析、CV草稿、差距分析、PDF）都落在工作目录中，
// 各生成步骤之间通过这些文件衔接
package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// 工作区内的固定文件名
const (
	FileJobAnalysis    = "job_analysis.json"
	FileCVDatabase     = "cv_database.json"
	FileTailoredCV     = "tailored_cv.md"
	FileCVGaps         = "cv_gaps.txt"
	FileCoverLetter    = "cover_letter.md"
	FileGithubSelected = "github_repos_selected.json"
)

// Workspace 文件工作区
type Workspace struct {
	// Dir 中间产物目录
	Dir string
	// OutputDir 最终文档保存目录
	OutputDir string
}

// New 创建工作区实例
func New(dir, outputDir string) *Workspace {
	return &Workspace{Dir: dir, OutputDir: outputDir}
}

// EnsureDirs 创建工作目录（幂等）
func (w *Workspace) EnsureDirs() error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return fmt.Errorf("创建工作目录失败 %s: %w", w.Dir, err)
	}
	return nil
}

// Path 返回工作区内某文件的完整路径
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Exists 判断工作区内某文件是否存在
func (w *Workspace) Exists(name string) bool {
	_, err := os.Stat(w.Path(name))
	return err == nil
}

// SaveJSON 将对象以缩进JSON写入工作区
func (w *Workspace) SaveJSON(name string, v interface{}) error {
	if err := w.EnsureDirs(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", name, err)
	}
	if err := os.WriteFile(w.Path(name), data, 0644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", name, err)
	}
	return nil
}

// LoadJSON 从工作区读取JSON并反序列化到v
func (w *Workspace) LoadJSON(name string, v interface{}) error {
	data, err := os.ReadFile(w.Path(name))
	if err != nil {
		return fmt.Errorf("读取 %s 失败: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("解析 %s 失败: %w", name, err)
	}
	return nil
}

// SaveText 将文本写入工作区
func (w *Workspace) SaveText(name string, text string) error {
	if err := w.EnsureDirs(); err != nil {
		return err
	}
	if err := os.WriteFile(w.Path(name), []byte(text), 0644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", name, err)
	}
	return nil
}

// LoadText 从工作区读取文本
func (w *Workspace) LoadText(name string) (string, error) {
	data, err := os.ReadFile(w.Path(name))
	if err != nil {
		return "", fmt.Errorf("读取 %s 失败: %w", name, err)
	}
	return string(data), nil
}

// ResolveDownload 将相对文件名解析为工作区内的安全路径
// 拒绝逃逸出工作目录的路径（路径穿越防护）
func (w *Workspace) ResolveDownload(name string) (string, error) {
	absDir, err := filepath.Abs(w.Dir)
	if err != nil {
		return "", fmt.Errorf("解析工作目录失败: %w", err)
	}
	candidate, err := filepath.Abs(filepath.Join(w.Dir, name))
	if err != nil {
		return "", fmt.Errorf("解析下载路径失败: %w", err)
	}
	if candidate != absDir && !strings.HasPrefix(candidate, absDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("拒绝访问工作区之外的路径: %s", name)
	}
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("文件不存在: %s", name)
	}
	return candidate, nil
}

// ListPDFs 列出工作区内的PDF文件
func (w *Workspace) ListPDFs() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(w.Dir, "*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("枚举工作区PDF失败: %w", err)
	}
	return matches, nil
}

// SaveDocuments 将工作区内的PDF复制到输出目录，返回保存的文件名
func (w *Workspace) SaveDocuments() ([]string, error) {
	pdfs, err := w.ListPDFs()
	if err != nil {
		return nil, err
	}
	if len(pdfs) == 0 {
		return nil, fmt.Errorf("没有可保存的文档，请先渲染PDF")
	}
	if err := os.MkdirAll(w.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败 %s: %w", w.OutputDir, err)
	}

	var saved []string
	for _, src := range pdfs {
		name := filepath.Base(src)
		if err := copyFile(src, filepath.Join(w.OutputDir, name)); err != nil {
			return nil, fmt.Errorf("复制文档 %s 失败: %w", name, err)
		}
		saved = append(saved, name)
	}
	return saved, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
