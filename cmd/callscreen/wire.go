package main

import (
	"fmt"
	"log"

	"github.com/chadiek/callscreen/internal/archive"
	"github.com/chadiek/callscreen/internal/classify"
	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/llm"
	"github.com/chadiek/callscreen/internal/recording"
	"github.com/chadiek/callscreen/internal/screening"
	"github.com/chadiek/callscreen/internal/spamcache"
	"github.com/chadiek/callscreen/internal/store"
	"github.com/chadiek/callscreen/internal/tts"
)

func newClassifier(cfg config.Config) *classify.Client {
	c := classify.NewClient(cfg.GeminiKey, cfg.GeminiModel)
	if cfg.GeminiBaseURL != "" {
		c.BaseURL = cfg.GeminiBaseURL
	}
	return c
}

func openStore(cfg config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DatabaseDSN, err)
	}
	return st, nil
}

// openCache returns the Badger cache when CACHE_DIR is set and an in-process
// map otherwise. The returned close func is never nil.
func openCache(cfg config.Config) (spamcache.Cache, func() error, error) {
	if cfg.CacheDir == "" {
		log.Printf("spamcache: CACHE_DIR not set, classifications are kept in memory")
		return spamcache.NewMemory(), func() error { return nil }, nil
	}
	b, err := spamcache.OpenBadger(spamcache.BadgerOptions{Dir: cfg.CacheDir})
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}

// newRenderer prefers ElevenLabs and falls back to Deepgram. It returns nil
// when neither is configured.
func newRenderer(cfg config.Config) screening.Renderer {
	switch {
	case cfg.ElevenLabsKey != "":
		return tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	case cfg.DeepgramKey != "":
		return tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel)
	}
	return nil
}

// newRefiner cleans up recognized speech with Cerebras when configured,
// otherwise with the classification model.
func newRefiner(cfg config.Config, cl *classify.Client) screening.Refiner {
	if cfg.CerebrasKey != "" {
		return llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
	}
	if cfg.GeminiKey != "" {
		return cl
	}
	return nil
}

func newTranscriber(cfg config.Config, cl *classify.Client) recording.Transcriber {
	if cfg.GeminiKey == "" {
		return nil
	}
	return cl
}

func newArchiver(cfg config.Config) recording.Archiver {
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "" {
		return nil
	}
	a, err := archive.New(archive.Config{
		URL:            cfg.SupabaseURL,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
		Bucket:         cfg.SupabaseBucket,
	})
	if err != nil {
		log.Printf("archive: disabled: %v", err)
		return nil
	}
	return a
}
