package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Inbox.Directory == "" {
		cfg.Inbox.Directory = "/usr/local/var/invoiceaudit/inbox"
	}
	if cfg.Inbox.ArchiveDirectory == "" {
		cfg.Inbox.ArchiveDirectory = "/usr/local/var/invoiceaudit/processed"
	}
	if cfg.Inbox.Extensions == nil {
		cfg.Inbox.Extensions = []string{".pdf", ".txt", ".md", ".json", ".docx", ".xlsx"}
	}
	if cfg.Inbox.PollSeconds == 0 {
		cfg.Inbox.PollSeconds = 2
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/invoiceaudit/data/audit.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/invoiceaudit/data/vectors.idx"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/invoiceaudit/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Knowledge.ChunkSize == 0 {
		cfg.Knowledge.ChunkSize = 1000
	}
	if cfg.Knowledge.ChunkOverlap == 0 {
		cfg.Knowledge.ChunkOverlap = 200
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = 5
	}
	if cfg.Knowledge.MinPassScore == 0 {
		cfg.Knowledge.MinPassScore = 0.7
	}
	if cfg.Services.StandardizerURL == "" {
		cfg.Services.StandardizerURL = "http://localhost:8001/translate"
	}
	if cfg.Services.CompletionURL == "" {
		cfg.Services.CompletionURL = "http://localhost:8002/v1/chat/completions"
	}
	if cfg.Services.CompletionModel == "" {
		cfg.Services.CompletionModel = "gpt-4o-mini"
	}
	if cfg.Services.TimeoutSeconds == 0 {
		cfg.Services.TimeoutSeconds = 60
	}
	if cfg.RefData.Directory == "" {
		cfg.RefData.Directory = "/usr/local/var/invoiceaudit/refdata"
	}
	if cfg.Reports.Directory == "" {
		cfg.Reports.Directory = "/usr/local/var/invoiceaudit/reports"
	}
}
