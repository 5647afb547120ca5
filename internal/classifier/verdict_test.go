package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafetyVerdictParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Safety
		lenient bool
		wantErr bool
	}{
		{"structured unsafe", `{"verdict":"UNSAFE","reason":"direct insult"}`, Unsafe, false, false},
		{"structured lowercase", `{"verdict":"safe","reason":"quoting"}`, Safe, false, false},
		{"fenced", "```json\n{\"verdict\":\"SAFE\",\"reason\":\"meta\"}\n```", Safe, false, false},
		{"keyword safe", "I think this is SAFE.", Safe, true, false},
		{"keyword unsafe wins", "not SAFE, clearly UNSAFE", Unsafe, true, false},
		{"punish keyword", "PUNISH", Unsafe, true, false},
		{"unknown verdict falls to keywords", `{"verdict":"MAYBE"}`, "", false, true},
		{"garbage", "no idea", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v SafetyVerdict
			err := v.Parse(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnparseable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Verdict)
			assert.Equal(t, tt.lenient, v.Lenient)
		})
	}
}

func TestSpamVerdictDefaultsType(t *testing.T) {
	var v SpamVerdict
	require.NoError(t, v.Parse(`{"verdict":"PUNISH","reason":"flood","type":"SPAM"}`))
	assert.Equal(t, SpamPunish, v.Verdict)
	assert.Equal(t, SpamBurst, v.Type)

	require.NoError(t, v.Parse(`{"verdict":"PUNISH","reason":"flood"}`))
	assert.Equal(t, SpamBoth, v.Type)

	require.NoError(t, v.Parse("verdict: SAFE"))
	assert.Equal(t, SpamSafe, v.Verdict)
	assert.True(t, v.Lenient)
}

func TestAbuseVerdictParse(t *testing.T) {
	var v AbuseVerdict
	require.NoError(t, v.Parse(`{"is_abuse":true,"reason":"emotional reason only","concerns":["vague","personal"]}`))
	assert.True(t, v.IsAbuse)
	assert.Equal(t, []string{"vague", "personal"}, v.Concerns)

	require.NoError(t, v.Parse(`{"is_abuse":false,"reason":"cites the spam rule"}`))
	assert.False(t, v.IsAbuse)

	require.NoError(t, v.Parse("ABUSE"))
	assert.True(t, v.IsAbuse)
	assert.True(t, v.Lenient)

	assert.ErrorIs(t, v.Parse(`{"reason":"missing flag"}`), ErrUnparseable)
}

func TestAppealVerdictParse(t *testing.T) {
	var v AppealVerdict
	require.NoError(t, v.Parse(`{"status":"ACCEPTED","reason":"was quoting the word"}`))
	assert.Equal(t, AppealAccepted, v.Status)

	require.NoError(t, v.Parse("ACCEPTED? no, REJECTED"))
	assert.Equal(t, AppealRejected, v.Status)

	assert.ErrorIs(t, v.Parse("{}"), ErrUnparseable)
}
