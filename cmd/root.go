package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/cv-ranker/internal/embedding"
	"github.com/spigell/cv-ranker/internal/profile"
)

const (
	app       = "cv-ranker"
	envPrefix = "CV_RANKER"
)

type Config struct {
	Job        JobConfig               `mapstructure:"job"`
	Candidates CandidatesConfig        `mapstructure:"candidates"`
	Weights    profile.WeightSet       `mapstructure:"weights"`
	Killer     *profile.KillerCriteria `mapstructure:"killer"`
	Ranking    RankingConfig           `mapstructure:"ranking"`
	AI         *AIConfig               `mapstructure:"ai"`
	Embedding  *EmbeddingConfig        `mapstructure:"embedding"`
	Metrics    MetricsConfig           `mapstructure:"metrics"`
}

type JobConfig struct {
	File            string `mapstructure:"file"`
	PreferencesFile string `mapstructure:"preferences-file"`
}

type CandidatesConfig struct {
	Dir   string   `mapstructure:"dir"`
	Files []string `mapstructure:"files"`
}

type RankingConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// UseExtractedKiller falls back to killer criteria found in the job text
	// when none are configured.
	UseExtractedKiller bool `mapstructure:"use-extracted-killer"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries"`
	MaxLogLength   int    `mapstructure:"max-log-length"`
}

type EmbeddingConfig struct {
	Provider string          `mapstructure:"provider"`
	HTTP     *HTTPEmbedding  `mapstructure:"http"`
	Cache    *EmbeddingCache `mapstructure:"cache"`
}

type HTTPEmbedding struct {
	URL       string `mapstructure:"url"`
	Model     string `mapstructure:"model"`
	TokenFile string `mapstructure:"token-file"`
}

type EmbeddingCache struct {
	Redis *embedding.RedisConfig `mapstructure:"redis"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "cv-ranker ranks resumes against a job description with semantic similarity",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cv-ranker.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("weights.skills", 0.4)
	v.SetDefault("weights.experience", 0.3)
	v.SetDefault("weights.education", 0.2)
	v.SetDefault("weights.recruiter-preferences", 0.1)
	v.SetDefault("ranking.concurrency", 4)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.max-log-length", 200)
	v.SetDefault("embedding.provider", "gemini")
}

func initConfig() {
	// Only the rank command needs a config.
	if rankCmd.CalledAs() == "" {
		return
	}

	if err := loadConfig(viper.GetViper(), cfgFile); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads .env, the yaml file and CV_RANKER_* variables into v.
// A missing default config file is not an error; a missing explicit one is.
func loadConfig(v *viper.Viper, file string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(app)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func getConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}
	if config.Killer != nil {
		criteria, err := profile.NewKillerCriteria(config.Killer.Skills, config.Killer.Experience)
		if err != nil {
			return nil, fmt.Errorf("killer criteria: %w", err)
		}
		config.Killer = criteria
	}
	return config, nil
}
