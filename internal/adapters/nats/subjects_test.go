package natsadapter

import (
	"strings"
	"testing"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
)

func TestSubjects(t *testing.T) {
	if got := Subject("sardinia", domain.ChangeZoom); got != "ndvi.view.sardinia.zoom" {
		t.Errorf("Subject = %s", got)
	}
	if got := GridSubjects("sardinia"); got != "ndvi.view.sardinia.>" {
		t.Errorf("GridSubjects = %s", got)
	}

	for _, kind := range []domain.ChangeKind{domain.ChangeZoom, domain.ChangeMove} {
		subj := Subject("sardinia", kind)
		if !strings.HasPrefix(subj, strings.TrimSuffix(GridSubjects("sardinia"), ">")) {
			t.Errorf("%s is outside the grid filter", subj)
		}
		if strings.HasPrefix(subj, strings.TrimSuffix(GridSubjects("sardinia-north"), ">")) {
			t.Errorf("%s matches a foreign grid filter", subj)
		}
	}
}
