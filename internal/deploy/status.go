package deploy

import (
	"regexp"
	"strconv"
	"strings"
)

// Status is a parsed `git status --porcelain --branch`.
type Status struct {
	Branch     string   `json:"branch"`
	Tracking   string   `json:"tracking,omitempty"`
	Ahead      int      `json:"ahead"`
	Behind     int      `json:"behind"`
	Staged     []string `json:"staged"`
	Modified   []string `json:"modified"`
	Created    []string `json:"created"`
	Deleted    []string `json:"deleted"`
	Conflicted []string `json:"conflicted"`
	IsClean    bool     `json:"isClean"`
}

var (
	aheadRe  = regexp.MustCompile(`ahead (\d+)`)
	behindRe = regexp.MustCompile(`behind (\d+)`)
)

// ParseStatus parses porcelain v1 output produced with --branch.
func ParseStatus(out string) *Status {
	st := &Status{
		Staged:     []string{},
		Modified:   []string{},
		Created:    []string{},
		Deleted:    []string{},
		Conflicted: []string{},
	}
	entries := 0
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "## ") {
			parseBranch(st, strings.TrimPrefix(line, "## "))
			continue
		}
		if len(line) < 4 {
			continue
		}
		entries++
		x, y := line[0], line[1]
		path := line[3:]
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		path = strings.Trim(path, `"`)

		switch {
		case x == 'U' || y == 'U' || (x == 'A' && y == 'A') || (x == 'D' && y == 'D'):
			st.Conflicted = append(st.Conflicted, path)
		case x == '?' && y == '?':
			st.Created = append(st.Created, path)
		default:
			if x != ' ' {
				st.Staged = append(st.Staged, path)
			}
			if x == 'A' {
				st.Created = append(st.Created, path)
			}
			if x == 'D' || y == 'D' {
				st.Deleted = append(st.Deleted, path)
			}
			if x == 'M' || y == 'M' {
				st.Modified = append(st.Modified, path)
			}
		}
	}
	st.IsClean = entries == 0
	return st
}

func parseBranch(st *Status, head string) {
	if rest, ok := strings.CutPrefix(head, "No commits yet on "); ok {
		st.Branch = rest
		return
	}
	info := ""
	if i := strings.Index(head, " ["); i >= 0 {
		info = head[i+2:]
		head = head[:i]
	}
	if branch, tracking, ok := strings.Cut(head, "..."); ok {
		st.Branch, st.Tracking = branch, tracking
	} else {
		st.Branch = head
	}
	if m := aheadRe.FindStringSubmatch(info); m != nil {
		st.Ahead, _ = strconv.Atoi(m[1])
	}
	if m := behindRe.FindStringSubmatch(info); m != nil {
		st.Behind, _ = strconv.Atoi(m[1])
	}
}
