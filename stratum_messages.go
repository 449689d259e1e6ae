package main

import (
	"encoding/json"
	"fmt"
)

// maxStratumLineBytes bounds a single newline-delimited JSON frame. A
// well-formed subscribe/authorize/submit line is well under this; it
// exists to cap memory a hostile or broken client could force us to
// buffer before giving up on the line.
const maxStratumLineBytes = 32 * 1024

// StratumRequest is a client → server JSON-RPC frame: {id, method, params}.
// id is left as json.RawMessage so it can be echoed back byte-for-byte
// regardless of whether the client used a number, a string, or null.
type StratumRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// IsNotification reports whether this frame carries no meaningful id
// (absent or null), matching the "both accepted" rule for notifications.
func (r StratumRequest) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// StratumResponse is a server → client JSON-RPC frame: {id, result, error}.
// Server-initiated notifications (mining.notify, mining.set_difficulty)
// are sent as StratumRequest values with a nil ID and Method set, not as
// a StratumResponse.
type StratumResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result"`
	Error  any             `json:"error"`
}

// newSuccessResponse builds a response echoing id with the given result
// and a nil error.
func newSuccessResponse(id json.RawMessage, result any) StratumResponse {
	return StratumResponse{ID: id, Result: result, Error: nil}
}

// newErrorResponse builds a response echoing id with a nil result and
// the given Stratum error.
func newErrorResponse(id json.RawMessage, err StratumError) StratumResponse {
	return StratumResponse{ID: id, Result: nil, Error: err}
}

// newNotification builds a server-initiated notification frame, which
// carries no id.
func newNotification(method string, params any) (StratumRequest, error) {
	encoded, err := fastJSONMarshal(params)
	if err != nil {
		return StratumRequest{}, fmt.Errorf("encode %s params: %w", method, err)
	}
	return StratumRequest{ID: nil, Method: method, Params: encoded}, nil
}

// notifyNotification builds the mining.notify frame for job, rendered
// with prevHashWire (Stratum's word-swapped previous-hash hex).
func notifyNotification(job *Job, prevHashWire string) (StratumRequest, error) {
	n := job.Notify(prevHashWire)
	params := []any{
		n.JobID, n.PrevHash, n.Coinb1, n.Coinb2,
		n.MerkleBranches, n.Version, n.Nbits, n.Ntime, n.CleanJobs,
	}
	return newNotification("mining.notify", params)
}

// setDifficultyNotification builds the mining.set_difficulty frame.
func setDifficultyNotification(diff Difficulty) (StratumRequest, error) {
	return newNotification("mining.set_difficulty", []any{diff})
}

// configureParams is the parsed form of mining.configure's params array.
type configureParams struct {
	Extensions            []string
	VersionRollingMask    *Version
	VersionRollingMinBits *uint32
	MinimumDifficulty     *uint64
}

// parseConfigureParams decodes mining.configure's [extensions, options]
// positional params.
func parseConfigureParams(raw json.RawMessage) (configureParams, error) {
	var tuple []json.RawMessage
	if err := fastJSONUnmarshal(raw, &tuple); err != nil {
		return configureParams{}, ErrParamsNotArray
	}
	if len(tuple) < 1 {
		return configureParams{}, ErrInvalidArraySize
	}

	var out configureParams
	if err := fastJSONUnmarshal(tuple[0], &out.Extensions); err != nil {
		return configureParams{}, ErrInvalidArraySize
	}

	if len(tuple) < 2 {
		return out, nil
	}

	var options map[string]json.RawMessage
	if err := fastJSONUnmarshal(tuple[1], &options); err != nil {
		return out, nil
	}

	if raw, ok := options["version-rolling.mask"]; ok {
		var hexStr string
		if err := fastJSONUnmarshal(raw, &hexStr); err == nil {
			if v, err := VersionFromHex(hexStr); err == nil {
				out.VersionRollingMask = &v
			}
		}
	}
	if raw, ok := options["version-rolling.min-bit-count"]; ok {
		var v uint32
		if err := fastJSONUnmarshal(raw, &v); err == nil {
			out.VersionRollingMinBits = &v
		}
	}
	if raw, ok := options["minimum-difficulty.value"]; ok {
		var v uint64
		if err := fastJSONUnmarshal(raw, &v); err == nil {
			out.MinimumDifficulty = &v
		}
	}

	return out, nil
}

// submitParams is the parsed form of mining.submit's params array.
type submitParams struct {
	Username    string
	JobID       JobId
	Enonce2     Extranonce
	Ntime       Ntime
	Nonce       Nonce
	VersionBits *Version
}

func parseSubmitParams(raw json.RawMessage) (submitParams, error) {
	var tuple []string
	if err := fastJSONUnmarshal(raw, &tuple); err != nil {
		return submitParams{}, ErrParamsNotArray
	}
	if len(tuple) < 5 {
		return submitParams{}, ErrInvalidArraySize
	}

	var out submitParams
	out.Username = tuple[0]

	var jobIDRaw uint64
	if _, err := fmt.Sscanf(tuple[1], "%x", &jobIDRaw); err != nil {
		return submitParams{}, ErrInvalidJobId
	}
	out.JobID = JobId(jobIDRaw)

	enonce2, err := ExtranonceFromHex(tuple[2])
	if err != nil {
		return submitParams{}, ErrInvalidNonce2Length
	}
	out.Enonce2 = enonce2

	ntime, err := NtimeFromHex(tuple[3])
	if err != nil {
		return submitParams{}, ErrNtimeOutOfRange
	}
	out.Ntime = ntime

	nonce, err := NonceFromHex(tuple[4])
	if err != nil {
		return submitParams{}, ErrInvalidArraySize
	}
	out.Nonce = nonce

	if len(tuple) >= 6 {
		vb, err := VersionFromHex(tuple[5])
		if err != nil {
			return submitParams{}, ErrInvalidVersionMask
		}
		out.VersionBits = &vb
	}

	return out, nil
}

// parseAuthorizeUsername splits mining.authorize's username parameter
// into its Bitcoin address and optional worker name, per
// "<address>[.worker]".
func parseAuthorizeUsername(username string) (address string, worker string) {
	for i := 0; i < len(username); i++ {
		if username[i] == '.' {
			return username[:i], username[i+1:]
		}
	}
	return username, ""
}
