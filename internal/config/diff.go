package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RetrievalChanged is true when any retrieval tunable changed. The new
	// values are in the new config's Retrieval section.
	RetrievalChanged bool

	// Restart lists changed sections that only take effect after a restart
	// (providers, storage, listen address).
	Restart []string
}

// Changed reports whether d carries any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RetrievalChanged || len(d.Restart) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Retrieval != new.Retrieval {
		d.RetrievalChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.Restart = append(d.Restart, "server")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.Restart = append(d.Restart, "providers")
	}
	if old.Storage != new.Storage {
		d.Restart = append(d.Restart, "storage")
	}
	if old.Resolver != new.Resolver {
		d.Restart = append(d.Restart, "resolver")
	}
	if old.Memory != new.Memory {
		d.Restart = append(d.Restart, "memory")
	}
	if old.Cache != new.Cache {
		d.Restart = append(d.Restart, "cache")
	}
	if old.Ingest != new.Ingest {
		d.Restart = append(d.Restart, "ingest")
	}
	if old.Telemetry != new.Telemetry {
		d.Restart = append(d.Restart, "telemetry")
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameProviders compares provider entries by name, endpoint, and model.
// Options are not compared.
func sameProviders(a, b ProvidersConfig) bool {
	key := func(e ProviderEntry) string {
		return e.Name + "\x00" + e.BaseURL + "\x00" + e.Model + "\x00" + e.APIKey
	}
	list := func(p ProvidersConfig) []string {
		out := []string{key(p.LLM), key(p.SummaryLLM), key(p.Embeddings), "|"}
		for _, e := range p.FallbackLLMs {
			out = append(out, key(e))
		}
		out = append(out, "|")
		for _, e := range p.FallbackEmbeddings {
			out = append(out, key(e))
		}
		return out
	}
	return slices.Equal(list(a), list(b))
}
