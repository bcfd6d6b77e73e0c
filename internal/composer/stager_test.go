package composer

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api/apitest"
	"github.com/spec-kit/support-chat/internal/config"
	"github.com/spec-kit/support-chat/internal/domain"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

var testUploadCfg = config.UploadConfig{
	SellerMaxBytes: 2 * 1024 * 1024,
	AdminMaxBytes:  5 * 1024 * 1024,
}

func TestStagerRejectsOversizedFileWithoutUploading(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	stager := NewStager(fake, domain.RoleSeller, testUploadCfg, zap.NewNop())

	_, err := stager.Stage(context.Background(), "t1", "big.bin", strings.NewReader(""), testUploadCfg.SellerMaxBytes+1)
	if err == nil {
		t.Fatal("Stage() error = nil, want validation error")
	}
	if !apperrors.IsValidation(err) {
		t.Errorf("error = %v, want validation", err)
	}
	if got := fake.Calls("Upload"); got != 0 {
		t.Errorf("Upload calls = %d, want 0 for oversized file", got)
	}
	if got := len(stager.Staged()); got != 0 {
		t.Errorf("staged count = %d, want 0", got)
	}
}

func TestStagerPerRoleCeilings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		role    domain.Role
		size    int64
		wantErr bool
	}{
		{name: "seller at limit", role: domain.RoleSeller, size: testUploadCfg.SellerMaxBytes},
		{name: "seller over limit", role: domain.RoleSeller, size: testUploadCfg.SellerMaxBytes + 1, wantErr: true},
		{name: "admin between the ceilings", role: domain.RoleAdmin, size: testUploadCfg.SellerMaxBytes + 1},
		{name: "admin over limit", role: domain.RoleAdmin, size: testUploadCfg.AdminMaxBytes + 1, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stager := NewStager(apitest.New(), tt.role, testUploadCfg, zap.NewNop())
			_, err := stager.Stage(context.Background(), "t1", "f.bin", strings.NewReader(""), tt.size)
			if (err != nil) != tt.wantErr {
				t.Errorf("Stage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStagerRemoveAndConsume(t *testing.T) {
	t.Parallel()

	stager := NewStager(apitest.New(), domain.RoleSeller, testUploadCfg, zap.NewNop())
	ctx := context.Background()

	first, err := stager.Stage(ctx, "t1", "one.txt", strings.NewReader("one"), 3)
	if err != nil {
		t.Fatalf("Stage(one) error = %v", err)
	}
	if _, err := stager.Stage(ctx, "t1", "two.txt", strings.NewReader("two"), 3); err != nil {
		t.Fatalf("Stage(two) error = %v", err)
	}

	if !stager.Remove(first.ID) {
		t.Error("Remove() = false for a staged id")
	}
	if stager.Remove("missing") {
		t.Error("Remove() = true for an unknown id")
	}

	consumed := stager.ConsumeAll()
	if len(consumed) != 1 || consumed[0].Filename != "two.txt" {
		t.Errorf("ConsumeAll() = %v, want [two.txt]", consumed)
	}
	if got := len(stager.Staged()); got != 0 {
		t.Errorf("staged count after consume = %d, want 0", got)
	}
}
