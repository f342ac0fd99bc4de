package newsapi

import "net/http"

// corsHeaders is attached to every gateway response, pre-flight included.
var corsHeaders = [...][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type, x-api-key"},
	{"Access-Control-Allow-Methods", "POST, OPTIONS"},
}

func setCORSHeaders(h http.Header) {
	for _, kv := range corsHeaders {
		h.Set(kv[0], kv[1])
	}
}
