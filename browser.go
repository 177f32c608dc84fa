package main

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// BrowserSession owns the single browser handle for a run.
type BrowserSession struct {
	config   *Config
	log      *zap.Logger
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	stopChan chan bool
	stopOnce sync.Once

	// OnLost is called once when the watcher finds the browser gone.
	OnLost func()
}

func NewBrowserSession(config *Config, log *zap.Logger) *BrowserSession {
	if log == nil {
		log = zap.NewNop()
	}
	return &BrowserSession{
		config:   config,
		log:      log.Named("browser"),
		stopChan: make(chan bool, 1),
	}
}

func (b *BrowserSession) Setup() error {
	fmt.Println(T("browser_launching"))

	// Leakless deadlocks on Windows: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	chromePath, chromeExists := launcher.LookPath()

	b.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(b.config.Headless)

	// Must be set before Bin() to take effect.
	if b.config.BrowserProfilePath != "" {
		b.launcher = b.launcher.UserDataDir(b.config.BrowserProfilePath)
		b.log.Debug("browser profile", zap.String("path", b.config.BrowserProfilePath))
	}

	if chromeExists {
		b.launcher = b.launcher.Bin(chromePath)
		fmt.Println(T("browser_using_system_chrome"))
		b.log.Debug("chrome binary", zap.String("path", chromePath))
	} else {
		fmt.Println(T("browser_chrome_not_found"))
	}

	url, err := b.launcher.Launch()
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "ProcessSingleton") || strings.Contains(errMsg, "SingletonLock") ||
			strings.Contains(errMsg, "Opening in existing browser session") {
			fmt.Println(T("error_chrome_already_running"))
			return fmt.Errorf("browser profile %s is in use by another Chrome: %w", b.config.BrowserProfilePath, err)
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	b.browser = rod.New().ControlURL(url)
	if err := b.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	b.page, err = stealth.Page(b.browser)
	if err != nil {
		return fmt.Errorf("failed to create stealth page: %w", err)
	}

	if err := b.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.config.ViewportWidth,
		Height:            b.config.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		b.log.Warn("failed to set viewport", zap.Error(err))
	}

	if err := b.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		b.log.Warn("failed to set user agent", zap.Error(err))
	}

	go b.watchBrowser()

	fmt.Println(T("browser_launched"))
	b.log.Info("browser ready", zap.Bool("headless", b.config.Headless))
	return nil
}

// Page returns the working tab, or nil before Setup.
func (b *BrowserSession) Page() *rod.Page {
	return b.page
}

// Capturable returns the page as a screenshot source, nil when there is none.
func (b *BrowserSession) Capturable() pageCapturer {
	if b == nil || b.page == nil {
		return nil
	}
	return b.page
}

func (b *BrowserSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if b.page == nil {
		return fmt.Errorf("browser not initialized")
	}
	b.log.Info("navigating", zap.String("url", url))

	p := b.page.Context(ctx).Timeout(timeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("page failed to load: %w", err)
	}
	return nil
}

func (b *BrowserSession) CurrentURL() string {
	if b.page == nil {
		return ""
	}
	info, err := b.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (b *BrowserSession) Close() {
	b.stopOnce.Do(func() {
		select {
		case b.stopChan <- true:
		default:
		}
	})

	fmt.Println(T("cleaning_up"))

	if b.page != nil {
		b.page.Close()
	}

	if b.browser != nil {
		b.browser.Close()
	}

	if b.launcher != nil {
		b.launcher.Cleanup()
	}

	fmt.Println(T("browser_destroyed"))
}

func (b *BrowserSession) isBrowserAlive() bool {
	if b.browser == nil {
		return false
	}

	if _, err := b.browser.Version(); err != nil {
		b.log.Debug("browser version check failed", zap.Error(err))
		return false
	}

	if b.page != nil {
		if _, err := b.page.Info(); err != nil {
			b.log.Debug("page info check failed", zap.Error(err))
			return false
		}
	}

	return true
}

func (b *BrowserSession) watchBrowser() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if !b.isBrowserAlive() {
				fmt.Println(T("browser_closed_by_user"))
				b.log.Warn("browser closed while running")
				if b.OnLost != nil {
					b.OnLost()
				}
				return
			}
		}
	}
}
