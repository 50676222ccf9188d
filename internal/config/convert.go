package config

import (
	"github.com/danmuck/avlgate/internal/admin"
	"github.com/danmuck/avlgate/internal/auth"
	"github.com/danmuck/avlgate/internal/gateway"
	"github.com/danmuck/avlgate/internal/protocol/session"
	"github.com/danmuck/avlgate/internal/registry"
	"github.com/danmuck/avlgate/internal/sink"
	"github.com/rs/zerolog"
)

// Session returns the per-connection protocol settings.
func (c Config) Session() session.Config {
	return session.Config{
		Reassembly:     c.Reassembly,
		VerifyCRC:      c.VerifyCRC,
		MaxPacketBytes: c.MaxPacketBytes,
	}
}

// Gateway returns the tracker listener settings.
func (c Config) Gateway() gateway.Config {
	return gateway.Config{
		ListenAddr:      c.ListenAddr,
		ReadBufferBytes: c.ReadBufferBytes,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		Session:         c.Session(),
	}
}

// Admin returns the operator HTTP settings.
func (c Config) Admin() admin.Config {
	return admin.Config{
		Name:        "avlgate",
		Addr:        c.AdminAddr,
		CorsOrigins: c.CorsOrigins,
		Tokens:      auth.ParseTokens(c.AdminToken),
	}
}

func (c Config) Registry() registry.Options {
	return registry.Options{
		Table:   c.RegistryTable,
		Timeout: c.RegistryTimeout,
	}
}

// Sink returns the record sink options.
func (c Config) Sink(logger zerolog.Logger) sink.Options {
	return sink.Options{
		Table:   c.SinkTable,
		Timeout: c.SinkTimeout,
		Logger:  logger,
	}
}
