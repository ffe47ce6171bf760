package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	appassembly "job-agent-go/internal/app"
	"job-agent-go/internal/config"
	appCoreLogger "job-agent-go/internal/logger"
	"job-agent-go/internal/processor"
	"job-agent-go/internal/storage"
	"job-agent-go/internal/types"
	"job-agent-go/internal/workspace"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const usage = `用法: jobapply <mode> [flags]

modes:
  init      在配置路径生成示例配置文件
  analyze   分析岗位描述并保存到工作区
  github    拉取并筛选GitHub仓库
  cv        生成定制简历（需要已有岗位分析）
  letter    生成求职信（需要已有定制简历）
  render    把工作区内的Markdown渲染为PDF
  all       执行完整流水线
`

// jobapply 是流水线的命令行入口，每种mode对应流水线的一个阶段。
func main() {
	var (
		configPath  string
		jobURL      string
		textFile    string
		comments    string
		coverLetter bool
		maxWords    int
		maxChars    int
		iteration   int
		feedback    string
		noGithub    bool
		force       bool
		save        bool
	)

	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")
	pflag.StringVar(&jobURL, "url", "", "岗位发布页URL")
	pflag.StringVar(&textFile, "text-file", "", "包含岗位描述原文的文件路径")
	pflag.StringVar(&comments, "comments", "", "附加给生成器的自由指令")
	pflag.BoolVar(&coverLetter, "cover-letter", false, "all/render模式下同时处理求职信")
	pflag.IntVar(&maxWords, "max-words", 0, "求职信最大词数，0表示使用默认长度")
	pflag.IntVar(&maxChars, "max-chars", 0, "求职信最大字符数，与max-words互斥")
	pflag.IntVar(&iteration, "iteration", 1, "迭代轮次，大于1时复用上一轮岗位分析")
	pflag.StringVar(&feedback, "feedback", "", "细化轮次的修改意见")
	pflag.BoolVar(&noGithub, "no-github", false, "跳过GitHub项目上下文")
	pflag.BoolVar(&force, "force", false, "github模式下绕过缓存强制拉取")
	pflag.BoolVar(&save, "save", false, "运行结束后把PDF保存到输出目录")
	pflag.Parse()

	if pflag.NArg() < 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	mode := pflag.Arg(0)

	initCLILogger()

	// init模式不需要已有配置，生成后直接退出
	if mode == "init" {
		if err := config.CreateSampleConfig(configPath); err != nil {
			fatal("生成示例配置失败: %v", err)
		}
		fmt.Printf("示例配置已生成: %s\n", configPath)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatal("加载配置失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C中断当前LLM调用并退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		fmt.Fprintln(os.Stderr, "收到中断信号，正在退出...")
		cancel()
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		fatal("初始化存储失败: %v", err)
	}
	defer storageManager.Close()

	ws := workspace.New(cfg.Workspace.Dir, cfg.Workspace.OutputDir)
	if err := ws.EnsureDirs(); err != nil {
		fatal("创建工作区目录失败: %v", err)
	}

	if noGithub {
		cfg.GitHub.Username = ""
	}
	comps, err := appassembly.BuildComponents(ctx, cfg, storageManager, ws)
	if err != nil {
		fatal("初始化流水线组件失败: %v", err)
	}

	genOpts := types.GenerateOptions{
		Comments:           comments,
		Iteration:          iteration,
		RefinementFeedback: feedback,
	}

	switch mode {
	case "analyze":
		runAnalyze(ctx, comps, ws, jobURL, textFile)
	case "github":
		runGithub(ctx, comps, ws, force)
	case "cv":
		runCV(ctx, comps, ws, genOpts)
	case "letter":
		runLetter(ctx, comps, ws, genOpts, maxWords, maxChars)
	case "render":
		runRender(ctx, comps, ws, coverLetter)
	case "all":
		runAll(ctx, comps, ws, processor.PipelineInput{
			URL:                 jobURL,
			Text:                readTextFile(textFile),
			Comments:            comments,
			GenerateCoverLetter: coverLetter,
			MaxWords:            maxWords,
			Iteration:           iteration,
			RefinementFeedback:  feedback,
		})
	default:
		fmt.Fprintf(os.Stderr, "未知mode: %s\n\n%s", mode, usage)
		os.Exit(2)
	}

	if save {
		saved, err := ws.SaveDocuments()
		if err != nil {
			fatal("保存文档失败: %v", err)
		}
		for _, name := range saved {
			fmt.Printf("已保存: %s\n", name)
		}
	}
}

func runAnalyze(ctx context.Context, comps *processor.Components, ws *workspace.Workspace, jobURL, textFile string) {
	jobText := readTextFile(textFile)
	if jobURL == "" && strings.TrimSpace(jobText) == "" {
		fatal("必须提供--url或--text-file之一")
	}

	var analysis *types.JobAnalysis
	var err error
	if jobURL != "" {
		analysis, err = comps.Analyzer.AnalyzeURL(ctx, jobURL)
	} else {
		analysis, err = comps.Analyzer.AnalyzeText(ctx, jobText)
	}
	if err != nil {
		fatal("岗位分析失败: %v", err)
	}
	if err := ws.SaveJSON(workspace.FileJobAnalysis, analysis); err != nil {
		fatal("保存岗位分析失败: %v", err)
	}
	fmt.Printf("岗位分析完成: %s @ %s (%s)\n", analysis.JobTitle, analysis.Company, analysis.Language)
}

func runGithub(ctx context.Context, comps *processor.Components, ws *workspace.Workspace, force bool) {
	if comps.Repos == nil {
		fatal("GitHub集成未配置")
	}
	repos, err := comps.Repos.FetchAllRepos(ctx, force)
	if err != nil {
		fatal("拉取GitHub仓库失败: %v", err)
	}
	fmt.Printf("共拉取 %d 个仓库\n", len(repos))

	// 已有岗位分析时顺便做相关性筛选
	if ws.Exists(workspace.FileJobAnalysis) {
		var analysis types.JobAnalysis
		if err := ws.LoadJSON(workspace.FileJobAnalysis, &analysis); err != nil {
			fatal("读取岗位分析失败: %v", err)
		}
		selected, err := comps.Repos.SelectRelevantRepos(ctx, repos, &analysis)
		if err != nil {
			fatal("筛选GitHub仓库失败: %v", err)
		}
		if err := ws.SaveJSON(workspace.FileGithubSelected, selected); err != nil {
			fatal("保存筛选结果失败: %v", err)
		}
		for _, r := range selected {
			fmt.Printf("  已选: %s\n", r.Name)
		}
	}
}

func runCV(ctx context.Context, comps *processor.Components, ws *workspace.Workspace, genOpts types.GenerateOptions) {
	analysis := loadAnalysis(ws)
	profile, err := comps.Profiles.Load(ctx)
	if err != nil {
		fatal("加载候选人档案失败: %v", err)
	}
	if ws.Exists(workspace.FileGithubSelected) {
		var projects []types.RepoSummary
		if err := ws.LoadJSON(workspace.FileGithubSelected, &projects); err == nil {
			profile.GithubProjects = projects
		}
	}

	split, err := comps.CVGen.Generate(ctx, analysis, profile, genOpts)
	if err != nil {
		fatal("生成定制简历失败: %v", err)
	}
	if err := ws.SaveText(workspace.FileTailoredCV, split.CVContent); err != nil {
		fatal("保存定制简历失败: %v", err)
	}
	if err := ws.SaveText(workspace.FileCVGaps, split.GapAnalysis); err != nil {
		fatal("保存差距分析失败: %v", err)
	}
	fmt.Printf("定制简历已生成 (split_method=%s)\n", split.Method)
}

func runLetter(ctx context.Context, comps *processor.Components, ws *workspace.Workspace, genOpts types.GenerateOptions, maxWords, maxChars int) {
	analysis := loadAnalysis(ws)
	tailoredCV, err := ws.LoadText(workspace.FileTailoredCV)
	if err != nil {
		fatal("未找到定制简历，请先运行cv模式: %v", err)
	}

	letter, err := comps.LetterGen.Generate(ctx, analysis, tailoredCV, types.LetterOptions{
		GenerateOptions: genOpts,
		MaxWords:        maxWords,
		MaxChars:        maxChars,
	})
	if err != nil {
		fatal("生成求职信失败: %v", err)
	}
	if err := ws.SaveText(workspace.FileCoverLetter, letter); err != nil {
		fatal("保存求职信失败: %v", err)
	}
	fmt.Println("求职信已生成")
}

func runRender(ctx context.Context, comps *processor.Components, ws *workspace.Workspace, withCoverLetter bool) {
	analysis := loadAnalysis(ws)
	result, err := comps.Pipeline.RenderDocuments(ctx, analysis, !withCoverLetter)
	if err != nil {
		fatal("渲染PDF失败: %v", err)
	}
	fmt.Printf("渲染完成:\n  CV: %s\n", ws.Path(result.CVPDFPath))
	if result.CoverLetterPDFPath != "" {
		fmt.Printf("  求职信: %s\n", ws.Path(result.CoverLetterPDFPath))
	}
}

func runAll(ctx context.Context, comps *processor.Components, ws *workspace.Workspace, input processor.PipelineInput) {
	result, err := comps.Pipeline.Run(ctx, input, printStepEvent)
	if err != nil {
		fatal("流水线执行失败: %v", err)
	}
	fmt.Printf("\n生成完成:\n  CV: %s\n", ws.Path(result.CVPDFPath))
	if result.CoverLetterPDFPath != "" {
		fmt.Printf("  求职信: %s\n", ws.Path(result.CoverLetterPDFPath))
	}
}

func loadAnalysis(ws *workspace.Workspace) *types.JobAnalysis {
	var analysis types.JobAnalysis
	if err := ws.LoadJSON(workspace.FileJobAnalysis, &analysis); err != nil {
		fatal("未找到岗位分析，请先运行analyze模式: %v", err)
	}
	return &analysis
}

func readTextFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("读取岗位描述文件失败: %v", err)
	}
	return string(data)
}

// printStepEvent 把流水线事件打印成单行进度
func printStepEvent(ev processor.StepEvent) {
	switch ev.Event {
	case processor.EventProgress:
		fmt.Printf("==> %s\n", ev.Message)
	case processor.EventStepResult:
		fmt.Printf("    [%s] 完成\n", ev.Step)
	case processor.EventError:
		fmt.Fprintf(os.Stderr, "    [%s] 失败: %s\n", ev.Step, ev.Message)
	case processor.EventComplete:
		fmt.Println("==> 全部步骤完成")
	}
}

// initCLILogger CLI默认只在stderr输出warn以上日志，进度走stdout
func initCLILogger() {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	logger := zerolog.New(consoleWriter).Level(zerolog.WarnLevel).With().Timestamp().Logger()
	appCoreLogger.Logger = logger
	zlog.Logger = logger
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
