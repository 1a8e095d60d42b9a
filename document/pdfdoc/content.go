package pdfdoc

import "strconv"

// matrix is a PDF transformation matrix in [a b c d e f] order,
// applied to row vectors.
type matrix [6]float64

func identity() matrix { return matrix{1, 0, 0, 1, 0, 0} }

// mul returns m multiplied by n, so that applying the result equals
// applying m first and n second.
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// contentOp is one content stream operation, reduced to what the image
// pass needs: the numeric operands in order plus the last name operand.
// Strings, arrays and inline dictionaries are consumed without being
// kept.
type contentOp struct {
	op   string
	nums []float64
	name string
}

// parseOps tokenizes a content stream into its operator sequence.
// Inline image data between BI and EI is skipped as a unit since its
// payload is raw binary.
func parseOps(data []byte) []contentOp {
	s := &opScanner{data: data}
	var ops []contentOp
	var nums []float64
	var name string

	for s.pos < len(s.data) {
		s.skipSpace()
		if s.pos >= len(s.data) {
			break
		}
		c := s.data[s.pos]
		switch {
		case c == '%':
			s.skipComment()
		case c == '(':
			s.skipString()
		case c == '<':
			s.skipAngle()
		case c == '[' || c == ']' || c == '{' || c == '}':
			s.pos++
		case c == '/':
			name = s.readName()
		case c == '+' || c == '-' || c == '.' || isDigitByte(c):
			if f, ok := s.readNumber(); ok {
				nums = append(nums, f)
			}
		case isOperatorStart(c):
			op := s.readOperator()
			if op == "BI" {
				s.skipInlineImage()
			} else {
				ops = append(ops, contentOp{op: op, nums: nums, name: name})
			}
			nums, name = nil, ""
		default:
			s.pos++
		}
	}
	return ops
}

// walkOps interprets the operator sequence, maintaining the graphics
// state stack, and reports the matrix in effect for every XObject
// painted with Do.
func walkOps(ops []contentOp, base matrix, do func(name string, ctm matrix)) {
	ctm := base
	var stack []matrix
	for _, o := range ops {
		switch o.op {
		case "q":
			stack = append(stack, ctm)
		case "Q":
			if n := len(stack); n > 0 {
				ctm = stack[n-1]
				stack = stack[:n-1]
			}
		case "cm":
			if len(o.nums) >= 6 {
				v := o.nums[len(o.nums)-6:]
				m := matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
				ctm = m.mul(ctm)
			}
		case "Do":
			if o.name != "" {
				do(o.name, ctm)
			}
		}
	}
}

type opScanner struct {
	data []byte
	pos  int
}

func (s *opScanner) skipSpace() {
	for s.pos < len(s.data) && isSpaceByte(s.data[s.pos]) {
		s.pos++
	}
}

func (s *opScanner) skipComment() {
	for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
		s.pos++
	}
}

// skipString consumes a (...) literal, honoring escapes and balanced
// parentheses.
func (s *opScanner) skipString() {
	depth := 0
	for s.pos < len(s.data) {
		switch s.data[s.pos] {
		case '\\':
			s.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				s.pos++
				return
			}
		}
		s.pos++
	}
}

// skipAngle consumes either a <...> hex string or a nested <<...>>
// dictionary.
func (s *opScanner) skipAngle() {
	if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
		depth := 0
		for s.pos < len(s.data) {
			c := s.data[s.pos]
			if c == '(' {
				s.skipString()
				continue
			}
			if c == '<' && s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				depth++
				s.pos += 2
				continue
			}
			if c == '>' && s.pos+1 < len(s.data) && s.data[s.pos+1] == '>' {
				depth--
				s.pos += 2
				if depth == 0 {
					return
				}
				continue
			}
			s.pos++
		}
		return
	}
	s.pos++
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		s.pos++
	}
	if s.pos < len(s.data) {
		s.pos++
	}
}

// readName reads a /Name operand, decoding #xx escapes the way
// resource dictionary keys store them.
func (s *opScanner) readName() string {
	s.pos++
	var b []byte
	for s.pos < len(s.data) && isRegularByte(s.data[s.pos]) {
		c := s.data[s.pos]
		if c == '#' && s.pos+2 < len(s.data) && isHexByte(s.data[s.pos+1]) && isHexByte(s.data[s.pos+2]) {
			b = append(b, hexNibble(s.data[s.pos+1])<<4|hexNibble(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		b = append(b, c)
		s.pos++
	}
	return string(b)
}

func (s *opScanner) readNumber() (float64, bool) {
	start := s.pos
	if c := s.data[s.pos]; c == '+' || c == '-' {
		s.pos++
	}
	for s.pos < len(s.data) && (isDigitByte(s.data[s.pos]) || s.data[s.pos] == '.') {
		s.pos++
	}
	f, err := strconv.ParseFloat(string(s.data[start:s.pos]), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (s *opScanner) readOperator() string {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if !isOperatorStart(c) && c != '*' {
			break
		}
		s.pos++
	}
	return string(s.data[start:s.pos])
}

// skipInlineImage advances past an inline image. EI is only accepted
// at a whitespace boundary because the payload between ID and EI can
// contain any byte values.
func (s *opScanner) skipInlineImage() {
	for s.pos+1 < len(s.data) {
		if s.data[s.pos] == 'I' && s.data[s.pos+1] == 'D' {
			s.pos += 2
			break
		}
		s.pos++
	}
	if s.pos < len(s.data) && isSpaceByte(s.data[s.pos]) {
		s.pos++
	}
	for s.pos+1 < len(s.data) {
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' &&
			s.pos > 0 && isSpaceByte(s.data[s.pos-1]) &&
			(s.pos+2 >= len(s.data) || isSpaceByte(s.data[s.pos+2]) || isDelimByte(s.data[s.pos+2])) {
			s.pos += 2
			return
		}
		s.pos++
	}
	s.pos = len(s.data)
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelimByte(c byte) bool {
	return c == '(' || c == ')' || c == '<' || c == '>' ||
		c == '[' || c == ']' || c == '{' || c == '}' ||
		c == '/' || c == '%'
}

func isRegularByte(c byte) bool { return !isSpaceByte(c) && !isDelimByte(c) }

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }

func isOperatorStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '\'' || c == '"'
}

func isHexByte(c byte) bool {
	return isDigitByte(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexNibble(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	default:
		return c - '0'
	}
}
