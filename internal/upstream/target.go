package upstream

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// TargetKind represents how the proxy reaches the network for a request.
type TargetKind int

const (
	TargetUnknown TargetKind = iota
	// TargetDirect sends the request to the absolute URL the client asked for.
	TargetDirect
	// TargetOrigin rewrites the request onto a fixed origin base URL.
	TargetOrigin
)

var ErrNoTarget = errors.New("no upstream target available")

// ParseTargets converts raw strings into structured targets.
func ParseTargets(raw []string) ([]Target, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no upstream targets provided")
	}

	targets := make([]Target, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if strings.EqualFold(v, "direct://") {
			targets = append(targets, Target{Kind: TargetDirect})
			continue
		}

		u, err := url.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("parse upstream target %q: %w", v, err)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("upstream target %q must use http or https scheme", v)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("upstream target %q has no host", v)
		}

		// Normalize to ensure trailing slash removed for stable path joins.
		u.Path = strings.TrimRight(u.Path, "/")

		targets = append(targets, Target{Kind: TargetOrigin, base: u})
	}

	return targets, nil
}
