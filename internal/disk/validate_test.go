package disk

import (
	"testing"

	"drivemeta/internal/model"
)

func TestValidateImport(t *testing.T) {
	longURL := make([]byte, 256)
	for i := range longURL {
		longURL[i] = 'x'
	}

	tests := []struct {
		name    string
		mutate  func(*model.ImportRequest)
		wantErr bool
	}{
		{
			name:   "valid batch",
			mutate: func(*model.ImportRequest) {},
		},
		{
			name: "missing date",
			mutate: func(r *model.ImportRequest) {
				r.UpdateDate = model.Date{}
			},
			wantErr: true,
		},
		{
			name: "duplicate ids",
			mutate: func(r *model.ImportRequest) {
				r.Items = append(r.Items, folder("d1", nil))
			},
			wantErr: true,
		},
		{
			name: "file without url",
			mutate: func(r *model.ImportRequest) {
				r.Items[1].URL = nil
			},
			wantErr: true,
		},
		{
			name: "file without size",
			mutate: func(r *model.ImportRequest) {
				r.Items[1].Size = nil
			},
			wantErr: true,
		},
		{
			name: "file with non-positive size",
			mutate: func(r *model.ImportRequest) {
				zero := int64(0)
				r.Items[1].Size = &zero
			},
			wantErr: true,
		},
		{
			name: "file url too long",
			mutate: func(r *model.ImportRequest) {
				s := string(longURL)
				r.Items[1].URL = &s
			},
			wantErr: true,
		},
		{
			name: "folder with url",
			mutate: func(r *model.ImportRequest) {
				u := "/store/d1"
				r.Items[0].URL = &u
			},
			wantErr: true,
		},
		{
			name: "folder with size",
			mutate: func(r *model.ImportRequest) {
				n := int64(5)
				r.Items[0].Size = &n
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			mutate: func(r *model.ImportRequest) {
				r.Items[0].Type = "SYMLINK"
			},
			wantErr: true,
		},
		{
			name: "empty batch is a no-op import",
			mutate: func(r *model.ImportRequest) {
				r.Items = nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &model.ImportRequest{
				Items:      []model.ImportItem{folder("d1", nil), file("f1", strp("d1"), 10)},
				UpdateDate: at(0),
			}
			tt.mutate(req)

			err := validateImport(req)
			if tt.wantErr && !IsValidation(err) {
				t.Errorf("got %v, want validation error", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
