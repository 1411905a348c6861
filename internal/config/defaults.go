package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/edna/data/db/runs.db"
	}
	if cfg.Storage.LabelIndexPath == "" {
		cfg.Storage.LabelIndexPath = "/usr/local/var/edna/data/indices/labels"
	}
	if cfg.Storage.Artifacts.Backend == "" {
		cfg.Storage.Artifacts.Backend = "local"
	}
	if cfg.Storage.Artifacts.Dir == "" {
		cfg.Storage.Artifacts.Dir = "/usr/local/var/edna/data/reference"
	}
	if cfg.Storage.Artifacts.Region == "" {
		cfg.Storage.Artifacts.Region = "us-east-1"
	}
	if cfg.Storage.IndexName == "" {
		cfg.Storage.IndexName = "ref_index.eivf"
	}
	if cfg.Storage.CatalogName == "" {
		cfg.Storage.CatalogName = "ref_meta.json"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "kmer"
	}
	if cfg.Embedding.KmerSize == 0 {
		cfg.Embedding.KmerSize = 4
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case "kmer":
			cfg.Embedding.Dimensions = 1 << (2 * cfg.Embedding.KmerSize)
		default:
			cfg.Embedding.Dimensions = 512
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 4
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "ivfpq"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = "l2"
	}
	if cfg.Index.Nlist == 0 {
		cfg.Index.Nlist = 2048
	}
	if cfg.Index.Segments == 0 {
		cfg.Index.Segments = 16
	}
	if cfg.Index.BitsPerSegment == 0 {
		cfg.Index.BitsPerSegment = 8
	}
	if cfg.Index.Nprobe == 0 {
		cfg.Index.Nprobe = 16
	}
	if cfg.Index.AddBatchSize == 0 {
		cfg.Index.AddBatchSize = 5000
	}
	if cfg.Index.TrainSample == 0 {
		cfg.Index.TrainSample = 100000
	}
	if cfg.Classify.DefaultTopK == 0 {
		cfg.Classify.DefaultTopK = 3
	}
	if cfg.Classify.MaxTopK == 0 {
		cfg.Classify.MaxTopK = 50
	}
	if cfg.Classify.DefaultTau == 0 {
		cfg.Classify.DefaultTau = 0.75
	}
	if cfg.Cluster.MinPoints == 0 {
		cfg.Cluster.MinPoints = 5
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".fasta", ".fa", ".fna"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
