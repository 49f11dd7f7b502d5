// Package conflict detects destination collisions for file operations and
// decides how to handle them. The decision pipeline is deterministic: given
// the same conflict and no external callback, Resolve always returns the
// same action.
package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haulfm/haul/pkg/haul/logging"
)

// Kind classifies a conflict.
type Kind string

// Conflict kinds.
const (
	KindExists     Kind = "exists"
	KindPermission Kind = "permission"
	KindOther      Kind = "other"
)

// Action is the resolution decided for a conflict.
type Action string

// Resolution actions.
const (
	ActionSkip      Action = "skip"
	ActionOverwrite Action = "overwrite"
	ActionRename    Action = "rename"
	ActionBackup    Action = "backup"
	ActionAsk       Action = "ask"
)

// Info describes a detected conflict between a source and an occupied
// destination.
type Info struct {
	SourcePath    string
	DestPath      string
	Kind          Kind
	SourceSize    int64
	DestSize      int64
	SourceModTime time.Time
	DestModTime   time.Time

	// Suggested is the action the automatic rules would pick, computed at
	// detection time for display purposes.
	Suggested Action
}

// DecisionFunc is an external decision callback, consulted only when the
// automatic rules do not produce a decision.
type DecisionFunc func(Info) (Action, error)

// Rules configures the automatic decision pipeline.
type Rules struct {
	OverwriteNewer    bool
	OverwriteLarger   bool
	BackupOnOverwrite bool
	MaxRenameAttempts int
}

// DefaultRules mirrors the engine defaults: overwrite newer or larger
// sources, back up the destination otherwise.
func DefaultRules() Rules {
	return Rules{
		OverwriteNewer:    true,
		OverwriteLarger:   true,
		BackupOnOverwrite: true,
		MaxRenameAttempts: 100,
	}
}

// Resolver decides conflict actions.
type Resolver struct {
	rules Rules

	mu        sync.Mutex
	decisions map[string]Action

	log *logging.Logger
}

// NewResolver creates a Resolver with the given rules.
func NewResolver(rules Rules) *Resolver {
	if rules.MaxRenameAttempts <= 0 {
		rules.MaxRenameAttempts = 100
	}
	return &Resolver{
		rules:     rules,
		decisions: make(map[string]Action),
		log:       logging.Get("conflict"),
	}
}

// Detect inspects a destination and returns conflict information when the
// destination exists or access to it is denied. A nil Info means the
// operation may proceed without resolution.
func Detect(source, dest string) (*Info, error) {
	dstInfo, err := os.Lstat(dest)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		if os.IsPermission(err) {
			return &Info{
				SourcePath: source,
				DestPath:   dest,
				Kind:       KindPermission,
				Suggested:  ActionSkip,
			}, nil
		}
		return nil, fmt.Errorf("inspecting destination %q: %w", dest, err)
	}

	info := &Info{
		SourcePath:  source,
		DestPath:    dest,
		Kind:        KindExists,
		DestSize:    dstInfo.Size(),
		DestModTime: dstInfo.ModTime(),
	}

	if srcInfo, err := os.Lstat(source); err == nil {
		info.SourceSize = srcInfo.Size()
		info.SourceModTime = srcInfo.ModTime()
	}

	info.Suggested = (&Resolver{rules: DefaultRules()}).automatic(*info)
	return info, nil
}

// RegisterDecision pre-registers an explicit action for an exact
// (source, destination) pair. It takes precedence over all rules.
func (r *Resolver) RegisterDecision(source, dest string, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions[pairKey(source, dest)] = action
}

// Resolve runs the decision pipeline for a conflict. The external callback
// is consulted only when the rules yield ask; a failing callback defaults
// to skip.
func (r *Resolver) Resolve(info Info, callback DecisionFunc) Action {
	r.mu.Lock()
	registered, ok := r.decisions[pairKey(info.SourcePath, info.DestPath)]
	r.mu.Unlock()
	if ok {
		return registered
	}

	action := r.automatic(info)
	if action != ActionAsk {
		return action
	}

	if callback != nil {
		decided, err := callback(info)
		if err != nil {
			r.log.Warn("conflict decision callback failed", "dest", info.DestPath, "error", err)
			return ActionSkip
		}
		if decided != "" && decided != ActionAsk {
			return decided
		}
	}
	return ActionSkip
}

// automatic applies the deterministic rules.
func (r *Resolver) automatic(info Info) Action {
	switch info.Kind {
	case KindPermission:
		return ActionSkip
	case KindExists:
		if r.rules.OverwriteNewer && info.SourceModTime.After(info.DestModTime) {
			return ActionOverwrite
		}
		if r.rules.OverwriteLarger && info.SourceSize > info.DestSize {
			return ActionOverwrite
		}
		if r.rules.BackupOnOverwrite {
			return ActionBackup
		}
		return ActionRename
	default:
		return ActionAsk
	}
}

// BackupName generates the aside-name used before overwriting a
// destination: stem.backup.<unix-timestamp><ext>.
func (r *Resolver) BackupName(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.backup.%d%s", stem, time.Now().Unix(), ext)
}

// AvailableName finds a free destination name by appending _<n> before the
// extension, probing increasing n up to the configured bound. Beyond the
// bound a timestamp suffix is used.
func (r *Resolver) AvailableName(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	for n := 1; n <= r.rules.MaxRenameAttempts; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return fmt.Sprintf("%s_%d%s", stem, time.Now().UnixNano(), ext)
}

func pairKey(source, dest string) string {
	return source + "\x00" + dest
}
