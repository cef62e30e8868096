package wamp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURI_Segments(t *testing.T) {
	assert.Equal(t, []string{"com", "example", "add"}, URI("com.example.add").Segments())
	assert.Equal(t, []string{"com", "", "add"}, URI("com..add").Segments())
	assert.Nil(t, URI("").Segments())
}

func TestURI_ValidateProcedure(t *testing.T) {
	assert.NoError(t, URI("com.example.add").ValidateProcedure(MatchStrict))
	assert.NoError(t, URI("com.example").ValidateProcedure(MatchPrefix))
	assert.NoError(t, URI("com..add").ValidateProcedure(MatchWildcard))

	assert.Error(t, URI("").ValidateProcedure(MatchStrict))
	assert.Error(t, URI("com..add").ValidateProcedure(MatchStrict))
	assert.Error(t, URI("com.").ValidateProcedure(MatchPrefix))
	assert.Error(t, URI("..").ValidateProcedure(MatchWildcard))
	assert.Error(t, URI("com.ex ample").ValidateProcedure(MatchStrict))
	assert.Error(t, URI(strings.Repeat("a", maxURILength+1)).ValidateProcedure(MatchStrict))
}

func TestParseRegisterOptions(t *testing.T) {
	opts, err := ParseRegisterOptions(Dict{"match": "prefix", "invoke": "roundrobin"})
	require.NoError(t, err)
	assert.Equal(t, MatchPrefix, opts.Match)
	assert.Equal(t, InvokeRoundRobin, opts.Invoke)

	opts, err = ParseRegisterOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, RegisterOptions{Match: MatchStrict, Invoke: InvokeSingle}, opts)
	assert.Empty(t, opts.Dict())

	_, err = ParseRegisterOptions(Dict{"match": "fuzzy"})
	assert.ErrorContains(t, err, "unknown match policy")

	_, err = ParseRegisterOptions(Dict{"invoke": 3})
	assert.ErrorContains(t, err, "must be a string")
}

func TestInvocationDetails_Dict(t *testing.T) {
	assert.Empty(t, InvocationDetails{}.Dict())

	d := InvocationDetails{Procedure: "com.example.add", Caller: 77}.Dict()
	assert.Equal(t, "com.example.add", d["procedure"])
	assert.Equal(t, uint64(77), d["caller"])

	back := ParseInvocationDetails(d)
	assert.Equal(t, URI("com.example.add"), back.Procedure)
	assert.Equal(t, ID(77), back.Caller)
}

func TestInvocationPolicy_Shared(t *testing.T) {
	assert.False(t, InvokeSingle.Shared())
	for _, p := range []InvocationPolicy{InvokeFirst, InvokeLast, InvokeRoundRobin, InvokeRandom} {
		assert.True(t, p.Shared(), p.String())
		parsed, err := ParseInvocationPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}
