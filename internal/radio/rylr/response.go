package rylr

import (
	"bytes"
	"strconv"
)

type responseKind uint8

const (
	responseOther responseKind = iota
	responseOK
	responseError
	responseReceived
)

type response struct {
	kind responseKind
	code int // +ERR code
	line string

	addr uint16
	data []byte
	rssi int
	snr  int
}

var (
	crlf      = []byte("\r\n")
	prefixRCV = []byte("+RCV=")
	prefixERR = []byte("+ERR=")
	prefixOK  = []byte("+OK")
)

// scan extracts the first complete response from buf and returns it along
// with the number of bytes consumed. It returns n == 0 when more input is
// needed. Received data is length delimited, so it may contain commas and
// line breaks.
func scan(buf []byte) (response, int) {
	// skip blank lines between responses
	start := 0
	for bytes.HasPrefix(buf[start:], crlf) {
		start += len(crlf)
	}
	buf = buf[start:]

	if bytes.HasPrefix(buf, prefixRCV) {
		r, n, ok := scanReceived(buf)
		if ok {
			return r, start + n
		}
		if n < 0 {
			// a malformed header is reported as a plain line
			return scanLine(buf, start)
		}
		return response{}, 0
	}

	return scanLine(buf, start)
}

func scanLine(buf []byte, start int) (response, int) {
	i := bytes.Index(buf, crlf)
	if i < 0 {
		return response{}, 0
	}

	line := buf[:i]
	r := response{line: string(line)}

	switch {
	case bytes.Equal(line, prefixOK):
		r.kind = responseOK
	case bytes.HasPrefix(line, prefixERR):
		r.kind = responseError
		r.code, _ = strconv.Atoi(string(line[len(prefixERR):]))
	}

	return r, start + i + len(crlf)
}

// scanReceived parses +RCV=<addr>,<len>,<data>,<rssi>,<snr>. n is negative
// when the header is malformed.
func scanReceived(buf []byte) (r response, n int, ok bool) {
	rest := buf[len(prefixRCV):]

	addrEnd := bytes.IndexByte(rest, ',')
	if addrEnd < 0 {
		return r, lineOrWait(buf), false
	}
	addr, err := strconv.ParseUint(string(rest[:addrEnd]), 10, 16)
	if err != nil {
		return r, -1, false
	}
	rest = rest[addrEnd+1:]

	lenEnd := bytes.IndexByte(rest, ',')
	if lenEnd < 0 {
		return r, lineOrWait(buf), false
	}
	length, err := strconv.Atoi(string(rest[:lenEnd]))
	if err != nil || length < 0 || length > MaxPayload {
		return r, -1, false
	}
	rest = rest[lenEnd+1:]

	if len(rest) < length+1 {
		return r, 0, false
	}
	data := rest[:length]
	if rest[length] != ',' {
		return r, -1, false
	}
	rest = rest[length+1:]

	end := bytes.Index(rest, crlf)
	if end < 0 {
		return r, 0, false
	}

	r = response{
		kind: responseReceived,
		addr: uint16(addr),
		data: append([]byte(nil), data...),
	}
	if rssi, snr, found := bytes.Cut(rest[:end], []byte{','}); found {
		r.rssi, _ = strconv.Atoi(string(rssi))
		r.snr, _ = strconv.Atoi(string(snr))
	}

	consumed := len(buf) - len(rest) + end + len(crlf)
	return r, consumed, true
}

// lineOrWait treats a header cut by a line break as malformed, otherwise
// more input is needed
func lineOrWait(buf []byte) int {
	if bytes.Contains(buf, crlf) {
		return -1
	}
	return 0
}
