package platform

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

// TestCheckOS는 GOOS 값별 플랫폼 판정을 테스트합니다.
func TestCheckOS(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		wantErr bool
	}{
		{name: "windows는 지원", goos: "windows", wantErr: false},
		{name: "linux는 미지원", goos: "linux", wantErr: true},
		{name: "darwin은 미지원", goos: "darwin", wantErr: true},
		{name: "빈 값은 미지원", goos: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkOS(tt.goos)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkOS(%q) error = %v, wantErr %v", tt.goos, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("ErrUnsupported와 일치해야 합니다: %v", err)
			}
			var ue *UnsupportedError
			if !errors.As(err, &ue) {
				t.Fatalf("*UnsupportedError여야 합니다: %T", err)
			}
			if ue.Detected != tt.goos {
				t.Errorf("Detected = %q, want %q", ue.Detected, tt.goos)
			}
		})
	}
}

// TestUnsupportedError_Message는 에러 메시지에 감지된 플랫폼이 포함되는지 테스트합니다.
func TestUnsupportedError_Message(t *testing.T) {
	err := &UnsupportedError{Detected: "linux"}
	msg := err.Error()

	for _, want := range []string{"Windows-only", "'linux'", "explorer.exe"} {
		if !strings.Contains(msg, want) {
			t.Errorf("메시지에 %q가 포함되어야 합니다: %s", want, msg)
		}
	}
}

// TestCheck_Cached는 Check 결과가 한 번만 계산되어 재사용되는지 테스트합니다.
func TestCheck_Cached(t *testing.T) {
	first := Check()
	second := Check()

	if first != second {
		t.Errorf("Check 결과가 호출마다 달라지면 안됩니다: %v != %v", first, second)
	}
	if (first == nil) != (runtime.GOOS == Supported) {
		t.Errorf("GOOS=%s 에서 Check() = %v", runtime.GOOS, first)
	}
	if Detected() != runtime.GOOS {
		t.Errorf("Detected() = %q, want %q", Detected(), runtime.GOOS)
	}
}
