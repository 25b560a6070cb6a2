// Package chunk splits a document's text into named semantic sections by
// matching known header lines.
package chunk

import (
	"regexp"
	"strings"
)

// Section names emitted by Sections. SectionDoc is the synthetic full-document
// view; SectionOther collects lines that precede any recognized header.
const (
	SectionDoc        = "doc"
	SectionSkills     = "skills"
	SectionExperience = "experience"
	SectionProjects   = "projects"
	SectionEducation  = "education"
	SectionOther      = "other"
)

// Version tags the header-pattern set so runs record which chunking produced
// their artifacts.
const Version = "v1_doc_only"

type headerSet struct {
	section  string
	patterns []*regexp.Regexp
}

// Pattern order is fixed so a line matching two sets resolves the same way on
// every run.
var headers = []headerSet{
	{SectionSkills, compileAll(
		`^skills?\b`,
		`^technical skills?\b`,
		`^core competencies\b`,
		`^tools?\b`,
	)},
	{SectionExperience, compileAll(
		`^(work )?experience\b`,
		`^professional experience\b`,
		`^employment\b`,
	)},
	{SectionProjects, compileAll(
		`^projects?\b`,
		`^selected projects?\b`,
	)},
	{SectionEducation, compileAll(
		`^education\b`,
		`^academic\b`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Sections splits text into named sections. A cursor starts at "other" and
// advances whenever a line matches a section header; header lines themselves
// belong to no body. Every retained line additionally lands in the "doc"
// entry. Empty sections are omitted.
func Sections(text string) map[string]string {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			lines = append(lines, ln)
		}
	}

	current := SectionOther
	bodies := make(map[string][]string)
	var retained []string

	for _, ln := range lines {
		if section, ok := matchHeader(ln); ok {
			current = section
			continue
		}
		bodies[current] = append(bodies[current], ln)
		retained = append(retained, ln)
	}

	bodies[SectionDoc] = retained

	out := make(map[string]string, len(bodies))
	for section, body := range bodies {
		joined := strings.TrimSpace(strings.Join(body, "\n"))
		if joined != "" {
			out[section] = joined
		}
	}
	return out
}

func matchHeader(line string) (string, bool) {
	for _, hs := range headers {
		for _, p := range hs.patterns {
			if p.MatchString(line) {
				return hs.section, true
			}
		}
	}
	return "", false
}
