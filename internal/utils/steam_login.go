package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"idle_engine/internal/config"
	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
)

const (
	steamLoginURL     = "https://steamcommunity.com/login/home/?goto="
	steamCommunityURL = "https://steamcommunity.com"
)

var ErrLoginTimeout = errors.New("steam login window timed out")

// SteamLogin opens a browser on the Steam community login page and reads the
// session cookies once the user (or a remembered profile) is signed in.
type SteamLogin struct {
	cfg config.BrowserConfig
	bus *logbus.Bus

	// one window at a time
	mu sync.Mutex
}

func NewSteamLogin(cfg config.BrowserConfig, bus *logbus.Bus) *SteamLogin {
	return &SteamLogin{cfg: cfg, bus: bus}
}

func (s *SteamLogin) Harvest(ctx context.Context) (model.SessionCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := launcher.New().Headless(s.cfg.Headless)
	if s.cfg.UserDataDir != "" {
		l = l.UserDataDir(s.cfg.UserDataDir)
	}
	u, err := l.Launch()
	if err != nil {
		l.Kill()
		return model.SessionCredentials{}, err
	}
	defer l.Kill()

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return model.SessionCredentials{}, err
	}
	defer func() { _ = browser.Close() }()

	page, err := stealth.Page(browser)
	if err != nil {
		return model.SessionCredentials{}, err
	}
	page = page.Context(ctx)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: NormalizeDesktopUserAgent(s.cfg.UserAgent),
	}); err != nil {
		return model.SessionCredentials{}, err
	}
	if err := page.Navigate(steamLoginURL); err != nil {
		return model.SessionCredentials{}, err
	}
	s.log("info", "steam login window opened", nil)

	deadline := time.NewTimer(s.cfg.LoginTimeout())
	defer deadline.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if creds, ok := readSessionCookies(page); ok {
			s.log("info", "steam session cookies captured", nil)
			return creds, nil
		}
		select {
		case <-ctx.Done():
			return model.SessionCredentials{}, ctx.Err()
		case <-deadline.C:
			s.log("warn", "steam login window timed out", map[string]any{"timeout": s.cfg.LoginTimeout().String()})
			return model.SessionCredentials{}, ErrLoginTimeout
		case <-ticker.C:
		}
	}
}

func readSessionCookies(page *rod.Page) (model.SessionCredentials, bool) {
	raw, err := page.Cookies([]string{steamCommunityURL})
	if err != nil {
		return model.SessionCredentials{}, false
	}
	return model.CredentialsFromCookies(cookiesFromProto(raw))
}

func cookiesFromProto(in []*proto.NetworkCookie) []model.Cookie {
	out := make([]model.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, model.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	return out
}

func (s *SteamLogin) log(level, msg string, fields map[string]any) {
	if s.bus != nil {
		s.bus.Log(level, msg, fields)
	}
}
