package validate

import (
	"errors"
	"testing"
)

func TestMIMEType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "png", input: "image/png", want: "image/png"},
		{name: "case insensitive", input: "IMAGE/WEBP", want: "image/webp"},
		{name: "whitespace trimmed", input: "  image/jpeg  ", want: "image/jpeg"},
		{name: "empty", input: "", wantErr: ErrEmpty},
		{name: "gif not exported by the editor", input: "image/gif", wantErr: ErrInvalidMIMEType},
		{name: "executable", input: "application/x-executable", wantErr: ErrInvalidMIMEType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MIMEType(tt.input, AllowedThumbnailTypes)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("MIMEType() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("MIMEType() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("MIMEType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileSize(t *testing.T) {
	constraints := FileConstraints{MinSizeBytes: 10, MaxSizeBytes: 100}

	tests := []struct {
		name    string
		size    int64
		wantErr error
	}{
		{name: "within bounds", size: 50},
		{name: "at max", size: 100},
		{name: "zero", size: 0, wantErr: ErrFileTooSmall},
		{name: "below min", size: 5, wantErr: ErrFileTooSmall},
		{name: "above max", size: 101, wantErr: ErrFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FileSize(tt.size, constraints)
			if tt.wantErr == nil && err != nil {
				t.Errorf("FileSize() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("FileSize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestThumbnail(t *testing.T) {
	if got, err := Thumbnail("image/PNG", 2048); err != nil || got != "image/png" {
		t.Errorf("Thumbnail() = %q, %v", got, err)
	}
	if _, err := Thumbnail("image/png", MaxThumbnailBytes+1); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if _, err := Thumbnail("video/mp4", 2048); !errors.Is(err, ErrInvalidMIMEType) {
		t.Errorf("expected ErrInvalidMIMEType, got %v", err)
	}
}
