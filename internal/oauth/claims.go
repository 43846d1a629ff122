package oauth

import (
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// allSignatureAlgorithms lets ParseSigned accept any well-formed token;
// the claims are read without verification, so the algorithm does not
// gate anything here.
var allSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.EdDSA,
}

// DecodeOrganizationID extracts an organization identifier from an access
// token's claims. The token is decoded, NOT cryptographically verified;
// this is a best-effort heuristic over an unspecified claims contract and
// is only acceptable because this service never trusts the result for
// authorization decisions of its own.
//
// Claims are searched in priority order: org_id, organization_id,
// legion:org_id, orgs[0].organization_id, organizations[0].id, and
// finally the "{org}:::{scope}" prefix of the first space-delimited scope
// entry. An empty string means no claim matched; an error means the token
// is not a structurally valid JWT.
func DecodeOrganizationID(accessToken string) (string, error) {
	if strings.Count(accessToken, ".") != 2 {
		return "", fmt.Errorf("access token is not a three-segment JWT")
	}

	token, err := jwt.ParseSigned(accessToken, allSignatureAlgorithms)
	if err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}

	var claims map[string]any
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return "", fmt.Errorf("decode access token claims: %w", err)
	}

	for _, key := range []string{"org_id", "organization_id", "legion:org_id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}

	if v := firstArrayField(claims, "orgs", "organization_id"); v != "" {
		return v, nil
	}
	if v := firstArrayField(claims, "organizations", "id"); v != "" {
		return v, nil
	}

	if scope, ok := claims["scope"].(string); ok {
		if v := orgFromScope(scope); v != "" {
			return v, nil
		}
	}

	return "", nil
}

// firstArrayField returns claims[arrayKey][0][fieldKey] when the claim is
// a non-empty array of objects carrying a string field.
func firstArrayField(claims map[string]any, arrayKey, fieldKey string) string {
	arr, ok := claims[arrayKey].([]any)
	if !ok || len(arr) == 0 {
		return ""
	}
	first, ok := arr[0].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := first[fieldKey].(string)
	return v
}

// orgFromScope parses a space-delimited scope claim where each entry has
// the form "{organizationId}:::{scopeName}" and returns the first prefix.
func orgFromScope(scope string) string {
	for _, entry := range strings.Fields(scope) {
		if org, _, ok := strings.Cut(entry, ":::"); ok && org != "" {
			return org
		}
	}
	return ""
}
