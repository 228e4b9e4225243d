package gitx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skaphos/refcheck/internal/model"
)

const unitSep = "\x1f"

// ErrMalformedOutput marks git output that could not be parsed. Running the
// same command again yields the same output, so it is never retried.
var ErrMalformedOutput = errors.New("malformed git output")

// ParseRefRecords parses the unit-separated output of:
//
//	git for-each-ref --format=<RefFormat> refs/heads|refs/tags
//
// Records keep git's refname order.
func ParseRefRecords(output string, kind model.RefKind) []model.LocalRef {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	var refs []model.LocalRef
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, unitSep, 7)
		for len(parts) < 7 {
			parts = append(parts, "")
		}
		ref := model.LocalRef{
			Kind:        kind,
			Name:        parts[0],
			Commit:      parts[1],
			Peeled:      parts[2],
			Author:      parts[3],
			AuthorEmail: strings.Trim(parts[4], "<>"),
			Subject:     parts[6],
		}
		if ref.Name == "" || ref.Commit == "" {
			continue
		}
		if date, err := parseGitDate(parts[5]); err == nil {
			ref.Date = date
		} else {
			ref.Malformed = fmt.Sprintf("unparsable date %q", parts[5])
		}
		refs = append(refs, ref)
	}
	return refs
}

// ParseStashList parses the unit-separated output of:
//
//	git stash list --format=%gd%x1f%H%x1f%an%x1f%ae%x1f%aI%x1f%gs
//
// Stashes with unrecognized subjects keep a placeholder branch label.
func ParseStashList(output string) []model.LocalRef {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	var stashes []model.LocalRef
	position := 0
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, unitSep, 6)
		for len(parts) < 6 {
			parts = append(parts, "")
		}
		ref := model.LocalRef{
			Kind:        model.KindStash,
			Name:        parts[0],
			Commit:      parts[1],
			Author:      parts[2],
			AuthorEmail: parts[3],
			Subject:     parts[5],
		}
		var problems []string
		if idx, ok := ParseStashSelector(parts[0]); ok {
			ref.Index = idx
		} else {
			ref.Index = position
			ref.Name = fmt.Sprintf("stash@{%d}", position)
			problems = append(problems, fmt.Sprintf("unrecognized stash selector %q", parts[0]))
		}
		if date, err := parseGitDate(parts[4]); err == nil {
			ref.Date = date
		} else {
			problems = append(problems, fmt.Sprintf("unparsable date %q", parts[4]))
		}
		if branch, ok := ParseStashSubject(ref.Subject); ok {
			ref.Branch = branch
		} else {
			ref.Branch = model.StashPlaceholderBranch
			problems = append(problems, fmt.Sprintf("unrecognized stash subject %q", ref.Subject))
		}
		ref.Malformed = strings.Join(problems, "; ")
		stashes = append(stashes, ref)
		position++
	}
	return stashes
}

// ParseStashSelector extracts N from "stash@{N}".
func ParseStashSelector(selector string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(selector), "stash@{")
	if !ok {
		return 0, false
	}
	num, ok := strings.CutSuffix(rest, "}")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(num)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// ParseStashSubject extracts the original branch from an auto-generated
// stash message. Both "WIP on <branch>: ..." (plain `git stash`) and
// "On <branch>: ..." (`git stash push -m`) are accepted.
func ParseStashSubject(subject string) (string, bool) {
	subject = strings.TrimSpace(subject)
	var rest string
	switch {
	case strings.HasPrefix(subject, "WIP on "):
		rest = strings.TrimPrefix(subject, "WIP on ")
	case strings.HasPrefix(subject, "On "):
		rest = strings.TrimPrefix(subject, "On ")
	default:
		return "", false
	}
	branch, _, ok := strings.Cut(rest, ":")
	branch = strings.TrimSpace(branch)
	if !ok || branch == "" {
		return "", false
	}
	return branch, true
}

// RemoteRef is one advertised ref from `git ls-remote`.
type RemoteRef struct {
	// Hash is the advertised object id.
	Hash string
	// Ref is the full ref path with any ^{} suffix removed.
	Ref string
	// Peeled marks a "<ref>^{}" line carrying an annotated tag's commit.
	Peeled bool
}

// ShortName strips refs/heads/ or refs/tags/ from the ref path.
func (r RemoteRef) ShortName() string {
	switch {
	case strings.HasPrefix(r.Ref, "refs/heads/"):
		return strings.TrimPrefix(r.Ref, "refs/heads/")
	case strings.HasPrefix(r.Ref, "refs/tags/"):
		return strings.TrimPrefix(r.Ref, "refs/tags/")
	default:
		return r.Ref
	}
}

// ParseLsRemote parses `git ls-remote` output of "<hash>\t<ref>" lines.
func ParseLsRemote(output string) ([]RemoteRef, error) {
	var refs []RemoteRef
	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimRight(rawLine, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: unexpected ls-remote output line: %q", ErrMalformedOutput, rawLine)
		}
		ref := RemoteRef{Hash: parts[0], Ref: parts[1]}
		if base, ok := strings.CutSuffix(ref.Ref, "^{}"); ok {
			ref.Ref = base
			ref.Peeled = true
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ReflogEntry is one reflog record of a remote-tracking ref.
type ReflogEntry struct {
	// Name is the tracking ref's name relative to refs/remotes/<remote>/.
	Name string
	// Subject is the reflog message ("fetch origin: storing head", "update by push").
	Subject string
}

// FromRemoteTransfer reports whether the record was written by a fetch,
// pull, or push against the remote.
func (e ReflogEntry) FromRemoteTransfer() bool {
	s := strings.ToLower(strings.TrimSpace(e.Subject))
	return strings.HasPrefix(s, "fetch") || strings.HasPrefix(s, "pull") || strings.HasPrefix(s, "update by push")
}

// ParseReflog parses `git log --walk-reflogs --format=%gD%x1f%gs` output for
// refs under refs/remotes/<remote>/. Records for other refs and the remote's
// symbolic HEAD are skipped.
func ParseReflog(output, remote string) []ReflogEntry {
	var entries []ReflogEntry
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		selector, subject, _ := strings.Cut(line, unitSep)
		if at := strings.LastIndex(selector, "@{"); at >= 0 {
			selector = selector[:at]
		}
		name, ok := strings.CutPrefix(selector, "refs/remotes/"+remote+"/")
		if !ok {
			name, ok = strings.CutPrefix(selector, remote+"/")
		}
		if !ok || name == "" || name == "HEAD" {
			continue
		}
		entries = append(entries, ReflogEntry{Name: name, Subject: strings.TrimSpace(subject)})
	}
	return entries
}

func parseGitDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	return time.Parse(time.RFC3339, raw)
}
