package sanctions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Source yields a blocklist of addresses.
type Source interface {
	Load(ctx context.Context) ([]string, error)
	// Name labels matches, e.g. "ofac-sdn".
	Name() string
}

// FileSource reads a JSON array of address strings from Path.
type FileSource struct {
	Path string
	List string
}

func (s FileSource) Name() string {
	if s.List != "" {
		return s.List
	}
	return s.Path
}

func (s FileSource) Load(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read sanctions list %s: %w", s.Path, err)
	}
	var addrs []string
	if err := json.Unmarshal(raw, &addrs); err != nil {
		return nil, fmt.Errorf("parse sanctions list %s: %w", s.Path, err)
	}
	return addrs, nil
}

// StaticSource serves a fixed list, for tests and embedded lists.
type StaticSource struct {
	List      string
	Addresses []string
}

func (s StaticSource) Name() string {
	if s.List == "" {
		return "static"
	}
	return s.List
}

func (s StaticSource) Load(context.Context) ([]string, error) {
	out := make([]string, len(s.Addresses))
	copy(out, s.Addresses)
	return out, nil
}

func toSet(addrs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			set[a] = struct{}{}
		}
	}
	return set
}
