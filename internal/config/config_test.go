package config

import (
	"testing"
	"time"
)

func TestDefaultConstants(t *testing.T) {
	if DefaultHost != "0.0.0.0" {
		t.Errorf("DefaultHost = %v, want '0.0.0.0'", DefaultHost)
	}
	if DefaultPort != 8080 {
		t.Errorf("DefaultPort = %v, want 8080", DefaultPort)
	}
	if DefaultLogLevel != "INFO" {
		t.Errorf("DefaultLogLevel = %v, want 'INFO'", DefaultLogLevel)
	}
	if DefaultEmbeddingDimensions != 1536 {
		t.Errorf("DefaultEmbeddingDimensions = %v, want 1536", DefaultEmbeddingDimensions)
	}
	if DefaultTopN != 10 {
		t.Errorf("DefaultTopN = %v, want 10", DefaultTopN)
	}
	if DefaultMaxContextTokens != 28000 {
		t.Errorf("DefaultMaxContextTokens = %v, want 28000", DefaultMaxContextTokens)
	}
	if DefaultDBMaxOpenConns != 10 {
		t.Errorf("DefaultDBMaxOpenConns = %v, want 10", DefaultDBMaxOpenConns)
	}
	if DefaultDBConnTimeout != 5*time.Second {
		t.Errorf("DefaultDBConnTimeout = %v, want 5s", DefaultDBConnTimeout)
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	cfg := NewAppConfig()

	if cfg.Host() != DefaultHost {
		t.Errorf("Host() = %v, want '%v'", cfg.Host(), DefaultHost)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %v, want %v", cfg.Port(), DefaultPort)
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %v, want '%v'", cfg.LogLevel(), DefaultLogLevel)
	}
	if cfg.LogFormat() != LogFormatPretty {
		t.Errorf("LogFormat() = %v, want 'pretty'", cfg.LogFormat())
	}
	if cfg.SkipProviderValidation() {
		t.Error("SkipProviderValidation() should be false by default")
	}
	if cfg.DBMaxOpenConns() != DefaultDBMaxOpenConns {
		t.Errorf("DBMaxOpenConns() = %v, want %v", cfg.DBMaxOpenConns(), DefaultDBMaxOpenConns)
	}
	if cfg.DBConnTimeout() != DefaultDBConnTimeout {
		t.Errorf("DBConnTimeout() = %v, want %v", cfg.DBConnTimeout(), DefaultDBConnTimeout)
	}
	if cfg.Embedding().Model != DefaultEmbeddingModel {
		t.Errorf("Embedding().Model = %v, want %v", cfg.Embedding().Model, DefaultEmbeddingModel)
	}
	if cfg.LLM().ChatModel != DefaultLLMChatModel {
		t.Errorf("LLM().ChatModel = %v, want %v", cfg.LLM().ChatModel, DefaultLLMChatModel)
	}
	if cfg.Retrieval().TopN != DefaultTopN {
		t.Errorf("Retrieval().TopN = %v, want %v", cfg.Retrieval().TopN, DefaultTopN)
	}
}

func TestAppConfig_WithOptions(t *testing.T) {
	cfg := NewAppConfigWithOptions(
		WithDataDir("/custom/data"),
		WithDBURL("postgres://localhost/ragengine"),
		WithLogLevel("DEBUG"),
		WithLogFormat(LogFormatJSON),
		WithSkipProviderValidation(true),
		WithFrontendURL("https://app.example.com"),
		WithCORSOrigins([]string{"https://app.example.com"}),
	)

	if cfg.DataDir() != "/custom/data" {
		t.Errorf("DataDir() = %v, want '/custom/data'", cfg.DataDir())
	}
	if cfg.DBURL() != "postgres://localhost/ragengine" {
		t.Errorf("DBURL() = %v, want 'postgres://localhost/ragengine'", cfg.DBURL())
	}
	if cfg.LogLevel() != "DEBUG" {
		t.Errorf("LogLevel() = %v, want 'DEBUG'", cfg.LogLevel())
	}
	if cfg.LogFormat() != LogFormatJSON {
		t.Errorf("LogFormat() = %v, want 'json'", cfg.LogFormat())
	}
	if !cfg.SkipProviderValidation() {
		t.Error("SkipProviderValidation() should be true")
	}
	if cfg.FrontendURL() != "https://app.example.com" {
		t.Errorf("FrontendURL() = %v, want 'https://app.example.com'", cfg.FrontendURL())
	}
	if len(cfg.CORSOrigins()) != 1 {
		t.Errorf("CORSOrigins() length = %v, want 1", len(cfg.CORSOrigins()))
	}
}

func TestAppConfig_CORSOrigins_Copy(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithCORSOrigins([]string{"https://a.example.com"}))

	origins := cfg.CORSOrigins()
	origins[0] = "modified"

	if cfg.CORSOrigins()[0] == "modified" {
		t.Error("CORSOrigins() should return a copy")
	}
}

func TestAppConfig_DataDirUpdatesDBURL(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithDataDir("/custom"))

	expected := "sqlite:////custom/ragengine.db"
	if cfg.DBURL() != expected {
		t.Errorf("DBURL() = %v, want %v", cfg.DBURL(), expected)
	}
}

func TestAppConfig_WithDBURL_OverridesDataDir(t *testing.T) {
	cfg := NewAppConfigWithOptions(
		WithDataDir("/custom"),
		WithDBURL("postgres://localhost/db"),
	)

	if cfg.DBURL() != "postgres://localhost/db" {
		t.Errorf("DBURL() = %v, want explicit override", cfg.DBURL())
	}
}

func TestAppConfig_DBPool(t *testing.T) {
	cfg := NewAppConfigWithOptions(WithDBPool(20, 10*time.Second))

	if cfg.DBMaxOpenConns() != 20 {
		t.Errorf("DBMaxOpenConns() = %v, want 20", cfg.DBMaxOpenConns())
	}
	if cfg.DBConnTimeout() != 10*time.Second {
		t.Errorf("DBConnTimeout() = %v, want 10s", cfg.DBConnTimeout())
	}
}

func TestDefaultRankerWeights(t *testing.T) {
	w := DefaultRankerWeights()

	sum := w.Vector + w.Recency + w.Keyword + w.Source + w.Length
	if diff := sum - 1.0; diff > 0.001 || diff < -0.001 {
		t.Errorf("ranker weights should sum to 1.0, got %v", sum)
	}
	if w.SourcePriority["email"] != 1.0 {
		t.Errorf("SourcePriority[email] = %v, want 1.0", w.SourcePriority["email"])
	}
	if w.IntentBoost != 1.3 {
		t.Errorf("IntentBoost = %v, want 1.3", w.IntentBoost)
	}
}

func TestParseCommaList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: []string{}},
		{name: "single value", input: "a", expected: []string{"a"}},
		{name: "multiple values", input: "a,b,c", expected: []string{"a", "b", "c"}},
		{name: "with whitespace", input: "a , b , c", expected: []string{"a", "b", "c"}},
		{name: "with empty entries", input: "a,,b", expected: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseCommaList(tt.input)
			if len(result) != len(tt.expected) {
				t.Errorf("ParseCommaList(%q) length = %v, want %v", tt.input, len(result), len(tt.expected))
				return
			}
			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("ParseCommaList(%q)[%d] = %v, want %v", tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}
