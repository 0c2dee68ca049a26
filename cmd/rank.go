package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-ranker/internal/ai"
	"github.com/spigell/cv-ranker/internal/ai/gemini"
	"github.com/spigell/cv-ranker/internal/embedding"
	"github.com/spigell/cv-ranker/internal/embedding/httpapi"
	"github.com/spigell/cv-ranker/internal/killer"
	"github.com/spigell/cv-ranker/internal/logger"
	"github.com/spigell/cv-ranker/internal/metrics"
	"github.com/spigell/cv-ranker/internal/profile"
	"github.com/spigell/cv-ranker/internal/ranking"
	"github.com/spigell/cv-ranker/internal/secrets"
)

const (
	PromptReport       = "Show ranking report"
	PromptDisqualified = "Show disqualified candidates"
	PromptDumpToFile   = "Dump ranking to file"
	PromptExit         = "Exit"
)

var errExit = errors.New("exit requested")

var resumeExtensions = []string{".txt", ".md"}

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptReport, PromptDisqualified, PromptDumpToFile, PromptExit},
}

var rankCmd = &cobra.Command{
	Use:   "rank [resume files...]",
	Short: "Rank resumes against a job description",
	RunE: func(cmd *cobra.Command, args []string) error {
		return rank(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(rankCmd)

	rankCmd.Flags().String("job", "", "file with the job description")
	rankCmd.Flags().String("preferences", "", "file with recruiter preferences")
	rankCmd.Flags().String("candidates-dir", "", "directory with resume files (.txt, .md)")
	rankCmd.Flags().Int("concurrency", 0, "how many candidates are scored at once")
	rankCmd.Flags().BoolP("yes", "y", false, "print the report and exit without the interactive menu")
	rankCmd.Flags().Int("top", 0, "with --yes, print only the first n positions")

	viper.BindPFlag("job.file", rankCmd.Flags().Lookup("job"))
	viper.BindPFlag("job.preferences-file", rankCmd.Flags().Lookup("preferences"))
	viper.BindPFlag("candidates.dir", rankCmd.Flags().Lookup("candidates-dir"))
	viper.BindPFlag("ranking.concurrency", rankCmd.Flags().Lookup("concurrency"))
}

func rank(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	defer log.Sync()

	config, err := getConfig(viper.GetViper())
	if err != nil {
		log.Error("getting a config", zap.Error(err))
		return err
	}

	log.Info("starting the cv-ranker", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	log.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if err := config.Weights.Validate(); err != nil {
		log.Error("invalid weights", zap.Error(err))
		return err
	}

	description, preferences, err := readJob(config.Job)
	if err != nil {
		log.Error("reading the job description", zap.Error(err))
		return err
	}

	resumes, err := collectResumes(config.Candidates, args)
	if err != nil {
		log.Error("collecting resumes", zap.Error(err))
		return err
	}
	log.Info("collected resumes", zap.Int("count", len(resumes)))

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if config.Metrics.Listen != "" {
		stop := serveMetrics(config.Metrics.Listen, registry, log)
		defer stop()
	}

	client, err := newGeminiClient(ctx, config.AI, log)
	if err != nil {
		log.Error("building the gemini client", zap.Error(err),
			zap.String("hint", "set ai.gemini.api-key-file or GEMINI_API_KEY"))
		return err
	}

	cache, closeEmbedder, err := newEmbedder(ctx, config, client, m, log)
	if err != nil {
		log.Error("building the embedder", zap.Error(err))
		return err
	}
	defer closeEmbedder()

	standardizer := gemini.NewStandardizer(client, logger.WithFields(log, logger.CommonFields("gemini", client.Model())...), config.AI.Gemini.MaxLogLength)
	ranker := ranking.New(cache, standardizer,
		ranking.WithConcurrency(config.Ranking.Concurrency),
		ranking.WithLogger(log),
		ranking.WithMetrics(m),
	)

	for _, status := range killer.New(nil).Describe() {
		log.Info("killer gate", zap.String("gate", status.Name), zap.Any("details", status.Details))
	}

	if config.Ranking.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Ranking.Timeout)
		defer cancel()
	}

	result, err := ranker.RankTexts(ctx, description, preferences, resumes, config.Weights,
		func(job *profile.JobProfile) *profile.KillerCriteria { return killerCriteria(config, job, log) })
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		if ai.IsTransport(err) {
			fields = append(fields, zap.String("hint", "an external service failed, check the network, api key and quotas"))
		}
		log.Error("ranking failed", fields...)
		return err
	}

	log.Info("ranking summary", zap.Any("summary", result.Summary()),
		zap.Int("cached_embeddings", cache.Len()),
	)

	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		top, _ := cmd.Flags().GetInt("top")
		if top > 0 {
			fmt.Print(ranking.FormatEntries(result.Top(top)))
			return nil
		}
		fmt.Print(result.String())
		return nil
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}
		if err := handleAction(action, result, log); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			return err
		}
	}
}

// killerCriteria returns the configured criteria. Criteria extracted from the
// job text are used only when nothing is configured and the fallback is on.
func killerCriteria(config *Config, job *profile.JobProfile, log *zap.Logger) *profile.KillerCriteria {
	if !config.Killer.IsEmpty() {
		return config.Killer
	}
	if config.Ranking.UseExtractedKiller && !job.Killer.IsEmpty() {
		log.Info("using killer criteria extracted from the job description",
			zap.Strings("skills", job.Killer.Skills),
			zap.Strings("experience", job.Killer.Experience),
		)
		return &job.Killer
	}
	return nil
}

func handleAction(action string, result *ranking.Ranking, log *zap.Logger) error {
	switch action {
	case PromptReport:
		pretty, _ := json.MarshalIndent(result.Report(), "", "  ")
		fmt.Println(string(pretty))
		return nil
	case PromptDisqualified:
		pretty, _ := json.MarshalIndent(result.DisqualificationReport(), "", "  ")
		fmt.Println(string(pretty))
		log.Info("disqualified candidates", zap.Int("count", len(result.Disqualified())))
		return nil
	case PromptDumpToFile:
		filename, err := result.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		log.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		log.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func readJob(cfg JobConfig) (string, string, error) {
	if strings.TrimSpace(cfg.File) == "" {
		return "", "", errors.New("job description file is required (job.file or --job)")
	}

	description, err := os.ReadFile(cfg.File)
	if err != nil {
		return "", "", fmt.Errorf("reading job file: %w", err)
	}
	if strings.TrimSpace(string(description)) == "" {
		return "", "", fmt.Errorf("job file %q is empty", cfg.File)
	}

	var preferences []byte
	if cfg.PreferencesFile != "" {
		preferences, err = os.ReadFile(cfg.PreferencesFile)
		if err != nil {
			return "", "", fmt.Errorf("reading preferences file: %w", err)
		}
	}

	return string(description), string(preferences), nil
}

// collectResumes reads explicit files first, then the directory in name order.
// Empty files are rejected so that no candidate silently disappears.
func collectResumes(cfg CandidatesConfig, args []string) ([]ranking.Resume, error) {
	paths := append(append([]string{}, cfg.Files...), args...)

	if cfg.Dir != "" {
		entries, err := os.ReadDir(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("reading candidates dir: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !slices.Contains(resumeExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
				continue
			}
			paths = append(paths, filepath.Join(cfg.Dir, entry.Name()))
		}
	}

	resumes := make([]ranking.Resume, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading resume: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, fmt.Errorf("resume %q is empty", path)
		}
		resumes = append(resumes, ranking.Resume{Source: path, Text: string(data)})
	}
	return resumes, nil
}

func newGeminiClient(ctx context.Context, cfg *AIConfig, log *zap.Logger) (*gemini.Client, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, errors.New("ai.gemini configuration is required")
	}
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}

	return gemini.NewClient(ctx, gemini.Config{
		APIKey:         apiKey,
		Model:          cfg.Gemini.Model,
		EmbeddingModel: cfg.Gemini.EmbeddingModel,
		MaxRetries:     cfg.Gemini.MaxRetries,
		MaxLogLength:   cfg.Gemini.MaxLogLength,
		Timeout:        cfg.Timeout,
	}, log)
}

// newEmbedder picks the provider and wraps it in the memoizing cache. The
// returned func releases the optional redis connection.
func newEmbedder(ctx context.Context, config *Config, client *gemini.Client, m *metrics.Metrics, log *zap.Logger) (*embedding.Cache, func(), error) {
	var (
		provider ai.Embedder = client
		model                = client.EmbeddingModel()
		cfg                  = config.Embedding
	)
	if cfg == nil {
		cfg = &EmbeddingConfig{Provider: "gemini"}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "gemini":
	case "http":
		if cfg.HTTP == nil || cfg.HTTP.URL == "" {
			return nil, nil, errors.New("embedding.http.url is required for the http provider")
		}
		token := ""
		if cfg.HTTP.TokenFile != "" {
			var err error
			token, err = secrets.Load(secrets.Source{Name: "embedding token", File: cfg.HTTP.TokenFile})
			if err != nil {
				return nil, nil, err
			}
		}
		provider = httpapi.New(cfg.HTTP.URL, cfg.HTTP.Model, token, config.AI.Timeout, log)
		model = cfg.HTTP.Model
	default:
		return nil, nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	opts := []embedding.Option{embedding.WithLogger(log), embedding.WithMetrics(m)}
	closer := func() {}

	if cfg.Cache != nil && cfg.Cache.Redis != nil && cfg.Cache.Redis.Address != "" {
		store, err := embedding.NewRedisStore(ctx, *cfg.Cache.Redis)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, embedding.WithStore(store))
		closer = func() { store.Close() }
		log.Info("embedding cache uses redis", zap.String("address", cfg.Cache.Redis.Address))
	}

	return embedding.NewCache(provider, model, opts...), closer, nil
}

func serveMetrics(addr string, g prometheus.Gatherer, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("listen", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
