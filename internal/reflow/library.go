package reflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/models"
)

var (
	ErrUnknownCurve = errors.New("unknown reflow curve")
	ErrInvalidCurve = errors.New("invalid reflow curve")
)

// Built-in curves, always available even without a curve directory.
var builtinCurves = []models.ReflowCurve{
	{
		Name:              "Sn63Pb37",
		MinimumStartTempC: 50,
		Steps: []models.ReflowStep{
			{Label: "Preheat", TargetTempC: 150, Duration: 60 * time.Second},
			{Label: "Soak", TargetTempC: 180, Duration: 90 * time.Second},
			{Label: "Reflow", TargetTempC: 230, Duration: 30 * time.Second},
			{Label: "Cooldown", TargetTempC: 50, Duration: 60 * time.Second},
		},
	},
	{
		Name:              "SAC305",
		MinimumStartTempC: 50,
		Steps: []models.ReflowStep{
			{Label: "Preheat", TargetTempC: 150, Duration: 90 * time.Second},
			{Label: "Soak", TargetTempC: 190, Duration: 100 * time.Second},
			{Label: "Reflow", TargetTempC: 245, Duration: 45 * time.Second},
			{Label: "Cooldown", TargetTempC: 50, Duration: 90 * time.Second},
		},
	},
}

// maxCurveTempC rejects obviously wrong files before they reach the heaters.
const maxCurveTempC = 300

// ParseCurve decodes and validates one YAML curve document.
func ParseCurve(data []byte) (models.ReflowCurve, error) {
	var c models.ReflowCurve
	if err := yaml.Unmarshal(data, &c); err != nil {
		return models.ReflowCurve{}, fmt.Errorf("%w: %v", ErrInvalidCurve, err)
	}
	if err := Validate(c); err != nil {
		return models.ReflowCurve{}, err
	}
	return c, nil
}

// Validate checks that a curve can be executed.
func Validate(c models.ReflowCurve) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCurve)
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidCurve, c.Name)
	}
	for i, s := range c.Steps {
		if s.Duration <= 0 {
			return fmt.Errorf("%w: %s step %d (%s) needs a positive duration", ErrInvalidCurve, c.Name, i, s.Label)
		}
		if s.TargetTempC < 0 || s.TargetTempC > maxCurveTempC {
			return fmt.Errorf("%w: %s step %d target %.0f°C out of range", ErrInvalidCurve, c.Name, i, s.TargetTempC)
		}
	}
	return nil
}

// Library holds built-in curves plus those loaded from a directory of YAML files.
// Files override built-ins of the same name.
type Library struct {
	dir string
	log *logger.Logger

	mu     sync.RWMutex
	curves map[string]models.ReflowCurve
	onLoad func(names []string)
}

func NewLibrary(dir string, log *logger.Logger) *Library {
	l := &Library{dir: dir, log: log.Named("curves")}
	l.curves = l.builtins()
	return l
}

func (l *Library) builtins() map[string]models.ReflowCurve {
	m := make(map[string]models.ReflowCurve, len(builtinCurves))
	for _, c := range builtinCurves {
		m[c.Name] = c
	}
	return m
}

// OnReload registers a callback run after every successful (re)load.
func (l *Library) OnReload(fn func(names []string)) {
	l.mu.Lock()
	l.onLoad = fn
	l.mu.Unlock()
}

// Load rescans the directory. Invalid files are skipped and reported in the
// returned error; valid ones are still installed.
func (l *Library) Load() error {
	curves := l.builtins()
	if l.dir == "" {
		l.install(curves)
		return nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.log.Warnw("curve_dir_missing", "dir", l.dir)
			l.install(curves)
			return nil
		}
		return fmt.Errorf("read curve dir %q: %w", l.dir, err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || !isCurveFile(e.Name()) {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		c, err := ParseCurve(data)
		if err != nil {
			l.log.Warnw("curve_file_rejected", "file", path, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		curves[c.Name] = c
	}
	l.install(curves)
	return errors.Join(errs...)
}

func (l *Library) install(curves map[string]models.ReflowCurve) {
	l.mu.Lock()
	l.curves = curves
	fn := l.onLoad
	l.mu.Unlock()

	names := l.Names()
	l.log.Infow("curves_loaded", "count", len(names))
	if fn != nil {
		fn(names)
	}
}

func isCurveFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func (l *Library) Get(name string) (models.ReflowCurve, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.curves[name]
	if !ok {
		return models.ReflowCurve{}, fmt.Errorf("%w: %q", ErrUnknownCurve, name)
	}
	c.Steps = append([]models.ReflowStep(nil), c.Steps...)
	return c, nil
}

// List returns all curves sorted by name.
func (l *Library) List() []models.ReflowCurve {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.ReflowCurve, 0, len(l.curves))
	for _, c := range l.curves {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.curves))
	for n := range l.curves {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Watch reloads the library whenever a curve file in the directory changes.
// It blocks until ctx is done.
func (l *Library) Watch(ctx context.Context) error {
	if l.dir == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create curve watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(l.dir); err != nil {
		return fmt.Errorf("watch curve dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isCurveFile(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				l.log.Debugw("curve_file_changed", "op", ev.Op.String(), "file", ev.Name)
				if err := l.Load(); err != nil {
					l.log.Warnw("curve_reload_partial", "err", err)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.Errorw("curve_watcher_error", "err", err)
		}
	}
}
