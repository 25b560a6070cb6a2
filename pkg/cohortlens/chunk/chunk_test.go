package chunk

import "testing"

func TestSectionsCursor(t *testing.T) {
	text := "Experience\nBuilt pipelines\nShipped services\nEducation\nBSc Computing\n"
	got := Sections(text)

	if got[SectionExperience] != "Built pipelines\nShipped services" {
		t.Errorf("experience = %q", got[SectionExperience])
	}
	if got[SectionEducation] != "BSc Computing" {
		t.Errorf("education = %q", got[SectionEducation])
	}
	if got[SectionDoc] != "Built pipelines\nShipped services\nBSc Computing" {
		t.Errorf("doc = %q", got[SectionDoc])
	}
	if _, ok := got[SectionOther]; ok {
		t.Errorf("unexpected other section: %q", got[SectionOther])
	}
}

func TestSectionsHeaderVariants(t *testing.T) {
	cases := []struct {
		header  string
		section string
	}{
		{"SKILLS", SectionSkills},
		{"Technical Skills", SectionSkills},
		{"Core Competencies", SectionSkills},
		{"Work Experience", SectionExperience},
		{"Professional Experience", SectionExperience},
		{"Employment", SectionExperience},
		{"Selected Projects", SectionProjects},
		{"Education", SectionEducation},
		{"Academic Background", SectionEducation},
	}
	for _, c := range cases {
		got := Sections(c.header + "\nsome body line\n")
		if got[c.section] != "some body line" {
			t.Errorf("header %q: section %q = %q", c.header, c.section, got[c.section])
		}
	}
}

func TestSectionsLeadingLinesGoToOther(t *testing.T) {
	got := Sections("Jane Doe\nSenior Engineer\n\nSkills\nGo, SQL\n")
	if got[SectionOther] != "Jane Doe\nSenior Engineer" {
		t.Errorf("other = %q", got[SectionOther])
	}
	if got[SectionSkills] != "Go, SQL" {
		t.Errorf("skills = %q", got[SectionSkills])
	}
}

func TestSectionsEmptyInput(t *testing.T) {
	if got := Sections("  \n\n  "); len(got) != 0 {
		t.Errorf("expected no sections, got %v", got)
	}
}

func TestSectionsHeaderMidWordNoMatch(t *testing.T) {
	// "education" must anchor at line start; a sentence mentioning it is body text.
	got := Sections("Skills\nMentoring and education programs\n")
	if got[SectionSkills] != "Mentoring and education programs" {
		t.Errorf("skills = %q", got[SectionSkills])
	}
	if _, ok := got[SectionEducation]; ok {
		t.Error("education should not match mid-line")
	}
}
