package main

import stdjson "encoding/json"

// jsonNumber aliases encoding/json.Number so callers don't care which
// codec backs fastJSONMarshal/fastJSONUnmarshal.
type jsonNumber = stdjson.Number
