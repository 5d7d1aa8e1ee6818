package pypi_test

import (
	"testing"

	"github.com/rocketDuck/folivora/internal/pypi"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Django", "django"},
		{"zope.interface", "zope.interface"},
		{"python_dateutil", "python-dateutil"},
		{"Flask-SQLAlchemy", "flask-sqlalchemy"},
		{"weird__name", "weird-name"},
		{"trailing_", "trailing"},
		{"pmxbot", "pmxbot"},
	}

	for _, tt := range tests {
		if got := pypi.NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPackageURL(t *testing.T) {
	got := pypi.PackageURL("https://pypi.org/pypi", "gunicorn")
	want := "https://pypi.org/pypi/gunicorn"
	if got != want {
		t.Errorf("PackageURL() = %q, want %q", got, want)
	}

	if got := pypi.PackageURL("", "gunicorn"); got != pypi.DefaultServer+"/gunicorn" {
		t.Errorf("PackageURL with empty server = %q", got)
	}
}
