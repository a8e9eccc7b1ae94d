package tracking

import "testing"

func TestResolveTestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		toggle     string
		bodyCode   string
		envCode    string
		envEnabled bool
		want       string
	}{
		{
			name:     "toggle off beats body code",
			toggle:   ToggleOff,
			bodyCode: "BODY1",
			envCode:  "ENV1",
			want:     "",
		},
		{
			name:       "toggle off beats enabled env default",
			toggle:     ToggleOff,
			envCode:    "ENV1",
			envEnabled: true,
			want:       "",
		},
		{
			name:     "toggle on prefers body code",
			toggle:   ToggleOn,
			bodyCode: "BODY1",
			envCode:  "ENV1",
			want:     "BODY1",
		},
		{
			name:    "toggle on falls back to env code even when globally disabled",
			toggle:  ToggleOn,
			envCode: "ENV1",
			want:    "ENV1",
		},
		{
			name:       "body code beats env default",
			bodyCode:   "BODY1",
			envCode:    "ENV1",
			envEnabled: true,
			want:       "BODY1",
		},
		{
			name:       "env default honored only when enabled",
			envCode:    "ENV1",
			envEnabled: true,
			want:       "ENV1",
		},
		{
			name:    "env default ignored when disabled",
			envCode: "ENV1",
			want:    "",
		},
		{
			name: "nothing supplied",
			want: "",
		},
		{
			name:    "unknown toggle value treated as absent",
			toggle:  "yes",
			envCode: "ENV1",
			want:    "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ResolveTestCode(tt.toggle, tt.bodyCode, tt.envCode, tt.envEnabled)
			if got != tt.want {
				t.Errorf("ResolveTestCode(%q, %q, %q, %v) = %q, want %q",
					tt.toggle, tt.bodyCode, tt.envCode, tt.envEnabled, got, tt.want)
			}
		})
	}
}
