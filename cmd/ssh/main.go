package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	ossignal "os/signal"
	"slices"
	"syscall"
	"time"

	"cryptothreads/internal/config"
	"cryptothreads/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	gossh "golang.org/x/crypto/ssh"
)

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	newSourceFunc     = func(baseURL string) tui.Source { return tui.NewAPIClient(baseURL) }
	newWishServerFunc = wish.NewServer
	setupSignalNotify = ossignal.Notify
	waitForSignalFunc = func(quit <-chan os.Signal) { <-quit }
)

// authorizer admits keys whose SHA256 fingerprint is on the allowlist.
type authorizer struct {
	fingerprints []string
}

func (a authorizer) allow(key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	if !slices.Contains(a.fingerprints, fingerprint) {
		slog.Warn("SSH auth denied", "fingerprint", fingerprint)
		return false
	}
	slog.Info("SSH auth accepted", "fingerprint", fingerprint)
	return true
}

func newModel(src tui.Source, s ssh.Session) (tea.Model, []tea.ProgramOption) {
	model := tui.NewModel(src, s.User())
	pty, _, _ := s.Pty()
	model.SetSize(pty.Window.Width, pty.Window.Height)
	return model, []tea.ProgramOption{tea.WithAltScreen()}
}

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()

	if len(cfg.SSHAuthorizedFingerprints) == 0 {
		slog.Warn("SSH_AUTHORIZED_FINGERPRINTS is empty, every login will be refused")
	}
	auth := authorizer{fingerprints: cfg.SSHAuthorizedFingerprints}
	src := newSourceFunc(cfg.APIBaseURL)

	addr := net.JoinHostPort("0.0.0.0", cfg.SSHPort)
	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(_ ssh.Context, key ssh.PublicKey) bool {
			return auth.allow(key)
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
				return newModel(src, s)
			}),
			logging.Middleware(),
		),
	)
	if err != nil {
		slog.Error("failed to create SSH server", "error", err)
		os.Exit(1)
	}

	if srv != nil {
		go func() {
			slog.Info("SSH dashboard listening", "addr", addr, "api", cfg.APIBaseURL)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				slog.Error("SSH server stopped", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	slog.Info("shutting down SSH server")

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("SSH server shutdown error", "error", err)
		}
	}

	slog.Info("SSH server exited")
}
