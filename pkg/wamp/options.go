package wamp

import "fmt"

// RegisterOptions is the typed view of REGISTER.Options.
type RegisterOptions struct {
	Match  MatchingPolicy
	Invoke InvocationPolicy
}

// ParseRegisterOptions reads "match" and "invoke" from a REGISTER options dict.
func ParseRegisterOptions(opts Dict) (RegisterOptions, error) {
	var ro RegisterOptions
	match, err := stringOption(opts, "match")
	if err != nil {
		return ro, err
	}
	if ro.Match, err = ParseMatchingPolicy(match); err != nil {
		return ro, err
	}
	invoke, err := stringOption(opts, "invoke")
	if err != nil {
		return ro, err
	}
	if ro.Invoke, err = ParseInvocationPolicy(invoke); err != nil {
		return ro, err
	}
	return ro, nil
}

// Dict renders the options, omitting defaults.
func (o RegisterOptions) Dict() Dict {
	d := Dict{}
	if o.Match != MatchStrict {
		d["match"] = o.Match.String()
	}
	if o.Invoke != InvokeSingle {
		d["invoke"] = o.Invoke.String()
	}
	return d
}

// CallOptions is the typed view of CALL.Options.
type CallOptions struct {
	DiscloseMe bool
}

// ParseCallOptions reads the options the dealer honours from a CALL options dict.
func ParseCallOptions(opts Dict) CallOptions {
	disclose, _ := opts["disclose_me"].(bool)
	return CallOptions{DiscloseMe: disclose}
}

// InvocationDetails is the typed view of INVOCATION.Details.
type InvocationDetails struct {
	// Procedure is the concrete call URI; only set for pattern-based matches.
	Procedure URI
	// Caller is the calling session; only set when the caller asked to be disclosed.
	Caller ID
}

// Dict renders the details, omitting empty fields.
func (d InvocationDetails) Dict() Dict {
	out := Dict{}
	if d.Procedure != "" {
		out["procedure"] = string(d.Procedure)
	}
	if d.Caller != 0 {
		out["caller"] = uint64(d.Caller)
	}
	return out
}

// ParseInvocationDetails reads an INVOCATION details dict.
func ParseInvocationDetails(details Dict) InvocationDetails {
	var out InvocationDetails
	if p, ok := details["procedure"].(string); ok {
		out.Procedure = URI(p)
	}
	if id, ok := AsID(details["caller"]); ok {
		out.Caller = id
	}
	return out
}

func stringOption(opts Dict, key string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %q must be a string, got %T", key, v)
	}
	return s, nil
}
