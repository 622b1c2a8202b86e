package main

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/client"
)

type commandContext struct {
	sessionFlag *string
	verbose     *bool

	sessionOnce sync.Once
	session     *client.Session
	sessionErr  error
}

func newCommandContext(sessionFlag *string, verbose *bool) *commandContext {
	return &commandContext{sessionFlag: sessionFlag, verbose: verbose}
}

func (c *commandContext) sessionPath() (string, error) {
	if c.sessionFlag != nil {
		if p := strings.TrimSpace(*c.sessionFlag); p != "" {
			return p, nil
		}
	}
	return client.DefaultSessionPath()
}

func (c *commandContext) ensureSession() (*client.Session, error) {
	c.sessionOnce.Do(func() {
		path, err := c.sessionPath()
		if err != nil {
			c.sessionErr = err
			return
		}
		c.session, c.sessionErr = client.LoadSession(path)
	})
	return c.session, c.sessionErr
}

func (c *commandContext) saveSession() error {
	path, err := c.sessionPath()
	if err != nil {
		return err
	}
	s, err := c.ensureSession()
	if err != nil {
		return err
	}
	return s.Save(path)
}

func (c *commandContext) client() (*client.Client, error) {
	s, err := c.ensureSession()
	if err != nil {
		return nil, err
	}
	return s.Client()
}

func (c *commandContext) logger() *zap.Logger {
	if c.verbose == nil || !*c.verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
