package engine

import (
	"strings"

	"github.com/alamotechllc/semsync/pkg/semaphore"
)

// MergeSurveyVars appends the desired variables whose names are missing from
// existing and returns the merged list with the appended names. Existing
// entries keep their fields, defaults and order. A name repeated in desired
// is added once. When nothing is missing the returned list is nil.
func MergeSurveyVars(existing, desired []semaphore.SurveyVar) ([]semaphore.SurveyVar, []string) {
	have := make(map[string]bool, len(existing))
	for _, v := range existing {
		have[v.Name] = true
	}

	var added []string
	merged := append([]semaphore.SurveyVar(nil), existing...)
	for _, v := range desired {
		if have[v.Name] {
			continue
		}
		have[v.Name] = true
		merged = append(merged, v)
		added = append(added, v.Name)
	}
	if len(added) == 0 {
		return nil, nil
	}
	return merged, added
}

// sameNames reports whether both lists carry the same names in the same order.
func sameNames(a, b []semaphore.SurveyVar) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

func sameArgumentNames(a, b []semaphore.Argument) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

// surveyUpdate decides the survey list to send for an existing template, or
// nil when it is already in line.
func surveyUpdate(mode SurveyMode, existing, desired []semaphore.SurveyVar) ([]semaphore.SurveyVar, string) {
	if len(desired) == 0 {
		return nil, ""
	}
	if mode == SurveyModeReplace {
		if sameNames(existing, desired) {
			return nil, ""
		}
		return append([]semaphore.SurveyVar(nil), desired...), "survey_vars replaced"
	}
	merged, added := MergeSurveyVars(existing, desired)
	if merged == nil {
		return nil, ""
	}
	return merged, "survey_vars +" + strings.Join(added, ",")
}
