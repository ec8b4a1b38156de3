package signature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedVerifier(algorithm string, now time.Time) *Verifier {
	v := NewVerifier(algorithm, DefaultSkewWindow)
	v.now = func() time.Time { return now }
	return v
}

func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Unix()
	body := []byte(`{"az_tx_id":"tx_1","email":"a@b.co"}`)

	digest := Sign("sha256", "s1", ts, body)
	header := Header("sha256", digest)

	v := fixedVerifier("sha256", now)
	require.True(t, v.Verify("s1", ts, body, header))
}

func TestVerifyRejectsMutations(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Unix()
	body := []byte(`{"az_tx_id":"tx_1"}`)
	header := Header("sha256", Sign("sha256", "s1", ts, body))
	v := fixedVerifier("sha256", now)

	mutatedBody := append([]byte(nil), body...)
	mutatedBody[0] ^= 0x01
	require.False(t, v.Verify("s1", ts, mutatedBody, header), "mutated body must fail")

	require.False(t, v.Verify("s1", ts+1, body, header), "mutated timestamp must fail")

	mutatedHeader := []byte(header)
	mutatedHeader[len(mutatedHeader)-1] ^= 0x01
	require.False(t, v.Verify("s1", ts, body, string(mutatedHeader)), "mutated signature must fail")

	require.False(t, v.Verify("s2", ts, body, header), "wrong secret must fail")
}

func TestVerifyRejectsAlgorithmMismatch(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := now.Unix()
	body := []byte(`{}`)

	header := Header("sha1", Sign("sha1", "s1", ts, body))
	v := fixedVerifier("sha256", now)
	require.False(t, v.Verify("s1", ts, body, header))
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)
	v := fixedVerifier("sha256", now)

	stale := now.Add(-301 * time.Second).Unix()
	header := Header("sha256", Sign("sha256", "s1", stale, body))
	require.False(t, v.Verify("s1", stale, body, header))

	future := now.Add(301 * time.Second).Unix()
	header = Header("sha256", Sign("sha256", "s1", future, body))
	require.False(t, v.Verify("s1", future, body, header))

	edge := now.Add(-300 * time.Second).Unix()
	header = Header("sha256", Sign("sha256", "s1", edge, body))
	require.True(t, v.Verify("s1", edge, body, header), "exactly at the window edge is still valid")
}

func TestParseHeader(t *testing.T) {
	algorithm, digest, ok := ParseHeader("sha256=abcdef")
	require.True(t, ok)
	require.Equal(t, "sha256", algorithm)
	require.Equal(t, "abcdef", digest)

	_, _, ok = ParseHeader("garbage")
	require.False(t, ok)

	_, _, ok = ParseHeader("=abcdef")
	require.False(t, ok)

	_, _, ok = ParseHeader("sha256=")
	require.False(t, ok)
}
