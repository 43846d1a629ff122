package oauth

import (
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// signToken builds a real HS256 token; the decoder never verifies the
// signature but does require a structurally valid JWT.
func signToken(t *testing.T, claims map[string]any) string {
	t.Helper()

	key := []byte("0123456789abcdef0123456789abcdef")
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func TestDecodeOrganizationIDClaimPriority(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		want   string
	}{
		{
			name:   "org_id wins",
			claims: map[string]any{"org_id": "org-1", "organization_id": "org-2"},
			want:   "org-1",
		},
		{
			name:   "organization_id fallback",
			claims: map[string]any{"organization_id": "org-2", "legion:org_id": "org-3"},
			want:   "org-2",
		},
		{
			name:   "namespaced claim",
			claims: map[string]any{"legion:org_id": "org-3"},
			want:   "org-3",
		},
		{
			name: "orgs array",
			claims: map[string]any{
				"orgs": []any{map[string]any{"organization_id": "org-4"}},
			},
			want: "org-4",
		},
		{
			name: "organizations array",
			claims: map[string]any{
				"organizations": []any{map[string]any{"id": "org-5"}},
			},
			want: "org-5",
		},
		{
			name:   "scope prefix",
			claims: map[string]any{"scope": "org-6:::entities.read org-7:::entities.write"},
			want:   "org-6",
		},
		{
			name:   "nothing matches",
			claims: map[string]any{"sub": "user-1", "scope": "entities.read"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeOrganizationID(signToken(t, tt.claims))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeOrganizationIDMalformedToken(t *testing.T) {
	_, err := DecodeOrganizationID("not-a-jwt")
	require.Error(t, err)

	_, err = DecodeOrganizationID("only.two")
	require.Error(t, err)

	_, err = DecodeOrganizationID("three.but.garbage")
	require.Error(t, err)
}

func TestDecodeOrganizationIDEmptyArrayEntries(t *testing.T) {
	got, err := DecodeOrganizationID(signToken(t, map[string]any{
		"orgs":          []any{},
		"organizations": []any{map[string]any{"name": "no id"}},
	}))
	require.NoError(t, err)
	require.Equal(t, "", got)
}
