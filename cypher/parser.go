package cypher

import "fmt"

// ParseError is raised for any malformed construct the parser encounters.
// Token names the offending token's text.
type ParseError struct {
	Msg    string
	Offset int
	Line   int
	Column int
	Token  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (at %d:%d, got %q)", e.Msg, e.Line, e.Column, e.Token)
}

// Parser is a hand-written recursive-descent parser over a token stream
// produced by Lexer.
type Parser struct {
	lex    *Lexer
	tok    Token
	peeked *Token
}

// Parse lexes and parses src as a single Cypher statement (with optional
// UNION continuations), returning its AST or the first *LexError/*ParseError
// encountered.
func Parse(src string) (*Query, error) {
	p := &Parser{lex: NewLexer(src)}
	if err := p.next(); err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != EOF {
		return nil, p.errorf("unexpected trailing input")
	}
	return q, nil
}

func (p *Parser) next() error {
	if p.peeked != nil {
		p.tok = *p.peeked
		p.peeked = nil
		return nil
	}
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *Parser) peek() (Token, error) {
	if p.peeked == nil {
		t, err := p.lex.Next()
		if err != nil {
			return Token{}, err
		}
		p.peeked = &t
	}
	return *p.peeked, nil
}

func (p *Parser) at(k Kind) bool { return p.tok.Kind == k }

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{
		Msg:    fmt.Sprintf(format, args...),
		Offset: p.tok.Pos.Offset,
		Line:   p.tok.Pos.Line,
		Column: p.tok.Pos.Column,
		Token:  p.tok.Text,
	}
}

func (p *Parser) expect(k Kind) (Token, error) {
	if p.tok.Kind != k {
		return Token{}, p.errorf("expected %s", k)
	}
	t := p.tok
	if err := p.next(); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (p *Parser) accept(k Kind) (bool, error) {
	if p.tok.Kind != k {
		return false, nil
	}
	if err := p.next(); err != nil {
		return false, err
	}
	return true, nil
}

// identLike accepts Ident or EscapedIdent, returning the raw name.
func (p *Parser) identLike() (string, error) {
	if p.tok.Kind != Ident && p.tok.Kind != EscapedIdent {
		return "", p.errorf("expected identifier")
	}
	name := p.tok.Text
	if err := p.next(); err != nil {
		return "", err
	}
	return name, nil
}

func (p *Parser) parseQuery() (*Query, error) {
	clauses, err := p.parseClauses()
	if err != nil {
		return nil, err
	}
	q := &Query{Clauses: clauses}
	for p.at(UNION) {
		if err := p.next(); err != nil {
			return nil, err
		}
		all, err := p.accept(ALL)
		if err != nil {
			return nil, err
		}
		arm, err := p.parseClauses()
		if err != nil {
			return nil, err
		}
		q.Unions = append(q.Unions, UnionArm{All: all, Clauses: arm})
	}
	return q, nil
}

func (p *Parser) parseClauses() ([]Clause, error) {
	var clauses []Clause
	for {
		c, ok, err := p.tryParseClause()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		clauses = append(clauses, c)
	}
	if len(clauses) == 0 {
		return nil, p.errorf("expected a clause")
	}
	return clauses, nil
}

func (p *Parser) tryParseClause() (Clause, bool, error) {
	switch p.tok.Kind {
	case MATCH, OPTIONAL:
		c, err := p.parseMatch()
		return c, true, err
	case CREATE:
		c, err := p.parseCreate()
		return c, true, err
	case MERGE:
		c, err := p.parseMerge()
		return c, true, err
	case SET:
		c, err := p.parseSet()
		return c, true, err
	case REMOVE:
		c, err := p.parseRemove()
		return c, true, err
	case DELETE, DETACH:
		c, err := p.parseDelete()
		return c, true, err
	case RETURN:
		c, err := p.parseReturn()
		return c, true, err
	case WITH:
		c, err := p.parseWith()
		return c, true, err
	case UNWIND:
		c, err := p.parseUnwind()
		return c, true, err
	case CALL:
		c, err := p.parseCall()
		return c, true, err
	default:
		return nil, false, nil
	}
}

func (p *Parser) parseMatch() (*MatchClause, error) {
	pos := p.tok.Pos
	optional, err := p.accept(OPTIONAL)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(MATCH); err != nil {
		return nil, err
	}
	pattern, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	var where Expression
	if p.at(WHERE) {
		if err := p.next(); err != nil {
			return nil, err
		}
		where, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return &MatchClause{Pattern: pattern, Where: where, Optional: optional, Pos: pos}, nil
}

func (p *Parser) parseCreate() (*CreateClause, error) {
	pos := p.tok.Pos
	if _, err := p.expect(CREATE); err != nil {
		return nil, err
	}
	pattern, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	return &CreateClause{Pattern: pattern, Pos: pos}, nil
}

func (p *Parser) parseMerge() (*MergeClause, error) {
	pos := p.tok.Pos
	if _, err := p.expect(MERGE); err != nil {
		return nil, err
	}
	part, err := p.parsePatternPart()
	if err != nil {
		return nil, err
	}
	var actions []*MergeAction
	for p.at(ON) {
		if err := p.next(); err != nil {
			return nil, err
		}
		var onCreate, onMatch bool
		switch p.tok.Kind {
		case CREATE:
			onCreate = true
			if err := p.next(); err != nil {
				return nil, err
			}
		case MATCH:
			onMatch = true
			if err := p.next(); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf("expected CREATE or MATCH after ON")
		}
		set, err := p.parseSet()
		if err != nil {
			return nil, err
		}
		actions = append(actions, &MergeAction{OnCreate: onCreate, OnMatch: onMatch, Set: set})
	}
	return &MergeClause{Pattern: part, Actions: actions, Pos: pos}, nil
}

func (p *Parser) parseSet() (*SetClause, error) {
	pos := p.tok.Pos
	if _, err := p.expect(SET); err != nil {
		return nil, err
	}
	var items []*SetItem
	for {
		item, err := p.parseSetItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		ok, err := p.accept(Comma)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return &SetClause{Items: items, Pos: pos}, nil
}

func (p *Parser) parseSetItem() (*SetItem, error) {
	variable, err := p.identLike()
	if err != nil {
		return nil, err
	}
	switch p.tok.Kind {
	case Dot:
		if err := p.next(); err != nil {
			return nil, err
		}
		prop, err := p.identLike()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(Eq); err != nil {
			return nil, err
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &SetItem{Kind: SetProperty, Variable: variable, Property: prop, Expr: expr}, nil
	case Colon:
		labels, err := p.parseLabelList()
		if err != nil {
			return nil, err
		}
		return &SetItem{Kind: SetLabels, Variable: variable, Labels: labels}, nil
	case PlusEq:
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &SetItem{Kind: SetVariable, Variable: variable, Expr: expr, Merge: true}, nil
	case Eq:
		if err := p.next(); err != nil {
			return nil, err
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &SetItem{Kind: SetVariable, Variable: variable, Expr: expr}, nil
	default:
		return nil, p.errorf("expected '.', ':', '=' or '+=' in SET item")
	}
}

func (p *Parser) parseLabelList() ([]string, error) {
	var labels []string
	for p.at(Colon) {
		if err := p.next(); err != nil {
			return nil, err
		}
		name, err := p.identLike()
		if err != nil {
			return nil, err
		}
		labels = append(labels, name)
	}
	return labels, nil
}

func (p *Parser) parseRemove() (*RemoveClause, error) {
	pos := p.tok.Pos
	if _, err := p.expect(REMOVE); err != nil {
		return nil, err
	}
	var items []*RemoveItem
	for {
		variable, err := p.identLike()
		if err != nil {
			return nil, err
		}
		if p.at(Dot) {
			if err := p.next(); err != nil {
				return nil, err
			}
			prop, err := p.identLike()
			if err != nil {
				return nil, err
			}
			items = append(items, &RemoveItem{Kind: RemoveProperty, Variable: variable, Property: prop})
		} else {
			labels, err := p.parseLabelList()
			if err != nil {
				return nil, err
			}
			if len(labels) == 0 {
				return nil, p.errorf("expected '.' or ':' after identifier in REMOVE")
			}
			items = append(items, &RemoveItem{Kind: RemoveLabels, Variable: variable, Labels: labels})
		}
		ok, err := p.accept(Comma)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return &RemoveClause{Items: items, Pos: pos}, nil
}

func (p *Parser) parseDelete() (*DeleteClause, error) {
	pos := p.tok.Pos
	detach, err := p.accept(DETACH)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(DELETE); err != nil {
		return nil, err
	}
	var exprs []Expression
	for {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
		ok, err := p.accept(Comma)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return &DeleteClause{Detach: detach, Exprs: exprs, Pos: pos}, nil
}

func (p *Parser) parseReturn() (*ReturnClause, error) {
	pos := p.tok.Pos
	if _, err := p.expect(RETURN); err != nil {
		return nil, err
	}
	body, err := p.parseProjectionBody()
	if err != nil {
		return nil, err
	}
	return &ReturnClause{Body: body, Pos: pos}, nil
}

func (p *Parser) parseWith() (*WithClause, error) {
	pos := p.tok.Pos
	if _, err := p.expect(WITH); err != nil {
		return nil, err
	}
	body, err := p.parseProjectionBody()
	if err != nil {
		return nil, err
	}
	var where Expression
	if p.at(WHERE) {
		if err := p.next(); err != nil {
			return nil, err
		}
		where, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return &WithClause{Body: body, Where: where, Pos: pos}, nil
}

func (p *Parser) parseProjectionBody() (*ProjectionBody, error) {
	body := &ProjectionBody{}
	var err error
	body.Distinct, err = p.accept(DISTINCT)
	if err != nil {
		return nil, err
	}
	if p.at(Star) {
		if err := p.next(); err != nil {
			return nil, err
		}
		body.Star = true
	} else {
		for {
			item, err := p.parseProjectionItem()
			if err != nil {
				return nil, err
			}
			body.Items = append(body.Items, item)
			ok, err := p.accept(Comma)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
	}
	if p.at(ORDER) {
		if err := p.next(); err != nil {
			return nil, err
		}
		if _, err := p.expect(BY); err != nil {
			return nil, err
		}
		for {
			oe, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			desc := false
			switch {
			case p.at(ASC):
				if err := p.next(); err != nil {
					return nil, err
				}
			case p.at(DESC):
				desc = true
				if err := p.next(); err != nil {
					return nil, err
				}
			}
			body.OrderBy = append(body.OrderBy, &OrderItem{Expr: oe, Desc: desc})
			ok, err := p.accept(Comma)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
	}
	if p.at(SKIP) {
		if err := p.next(); err != nil {
			return nil, err
		}
		body.Skip, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if p.at(LIMIT) {
		if err := p.next(); err != nil {
			return nil, err
		}
		body.Limit, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

func (p *Parser) parseProjectionItem() (*ProjectionItem, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	item := &ProjectionItem{Expr: expr}
	if p.at(AS) {
		if err := p.next(); err != nil {
			return nil, err
		}
		item.Alias, err = p.identLike()
		if err != nil {
			return nil, err
		}
	}
	return item, nil
}

func (p *Parser) parseUnwind() (*UnwindClause, error) {
	pos := p.tok.Pos
	if _, err := p.expect(UNWIND); err != nil {
		return nil, err
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(AS); err != nil {
		return nil, err
	}
	alias, err := p.identLike()
	if err != nil {
		return nil, err
	}
	return &UnwindClause{Expr: expr, Alias: alias, Pos: pos}, nil
}

func (p *Parser) parseCall() (*CallClause, error) {
	pos := p.tok.Pos
	if _, err := p.expect(CALL); err != nil {
		return nil, err
	}
	name, err := p.identLike()
	if err != nil {
		return nil, err
	}
	for p.at(Dot) {
		if err := p.next(); err != nil {
			return nil, err
		}
		part, err := p.identLike()
		if err != nil {
			return nil, err
		}
		name += "." + part
	}
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	var args []Expression
	if !p.at(RParen) {
		for {
			a, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			ok, err := p.accept(Comma)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
	}
	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}
	call := &CallClause{Procedure: name, Args: args, Pos: pos}
	if p.at(YIELD) {
		if err := p.next(); err != nil {
			return nil, err
		}
		for {
			yname, err := p.identLike()
			if err != nil {
				return nil, err
			}
			yitem := &YieldItem{Name: yname}
			if p.at(AS) {
				if err := p.next(); err != nil {
					return nil, err
				}
				yitem.Alias, err = p.identLike()
				if err != nil {
					return nil, err
				}
			}
			call.Yield = append(call.Yield, yitem)
			ok, err := p.accept(Comma)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
	}
	if p.at(WHERE) {
		if err := p.next(); err != nil {
			return nil, err
		}
		call.Where, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	return call, nil
}

// ----------------------------------------------------------------------
// Patterns
// ----------------------------------------------------------------------

func (p *Parser) parsePattern() (*Pattern, error) {
	pattern := &Pattern{}
	for {
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		pattern.Parts = append(pattern.Parts, part)
		ok, err := p.accept(Comma)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return pattern, nil
}

func (p *Parser) parsePatternPart() (*PatternPart, error) {
	part := &PatternPart{}
	if p.tok.Kind == Ident {
		if nxt, err := p.peek(); err == nil && nxt.Kind == Eq {
			name, err := p.identLike()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(Eq); err != nil {
				return nil, err
			}
			part.Variable = name
		}
	}
	el, err := p.parsePatternElement()
	if err != nil {
		return nil, err
	}
	part.Element = el
	return part, nil
}

func (p *Parser) parsePatternElement() (*PatternElement, error) {
	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	el := &PatternElement{Node: node}
	for p.at(Minus) || p.at(ArrowLeft) {
		link, err := p.parsePatternChainLink()
		if err != nil {
			return nil, err
		}
		el.Chain = append(el.Chain, *link)
	}
	return el, nil
}

func (p *Parser) parseNodePattern() (*NodePattern, error) {
	pos := p.tok.Pos
	if _, err := p.expect(LParen); err != nil {
		return nil, err
	}
	np := &NodePattern{Pos: pos}
	if p.tok.Kind == Ident || p.tok.Kind == EscapedIdent {
		name, err := p.identLike()
		if err != nil {
			return nil, err
		}
		np.Variable = name
	}
	labels, err := p.parseLabelList()
	if err != nil {
		return nil, err
	}
	np.Labels = labels
	if p.at(LBrace) {
		props, err := p.parseObjectLiteral()
		if err != nil {
			return nil, err
		}
		np.Properties = props
	} else if p.at(Param) {
		np.Properties = &ParamExpr{Name: p.tok.Text}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RParen); err != nil {
		return nil, err
	}
	return np, nil
}

func isPropertiesStart(t Token) bool { return t.Kind == LBrace || t.Kind == Param }

func (p *Parser) parsePatternChainLink() (*PatternChainLink, error) {
	dir := DirNone
	if p.at(ArrowLeft) {
		dir = DirLeft
		if err := p.next(); err != nil {
			return nil, err
		}
	} else {
		if _, err := p.expect(Minus); err != nil {
			return nil, err
		}
	}
	edge := &EdgePattern{Direction: dir, Pos: p.tok.Pos}
	if p.at(LBracket) {
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.Kind == Ident || p.tok.Kind == EscapedIdent {
			if nxt, err := p.peek(); err == nil && (nxt.Kind == Colon || nxt.Kind == RBracket || nxt.Kind == Star || isPropertiesStart(nxt)) {
				name, err := p.identLike()
				if err != nil {
					return nil, err
				}
				edge.Variable = name
			}
		}
		if p.at(Colon) {
			for p.at(Colon) {
				if err := p.next(); err != nil {
					return nil, err
				}
				name, err := p.identLike()
				if err != nil {
					return nil, err
				}
				edge.Types = append(edge.Types, name)
				if p.at(Pipe) {
					if err := p.next(); err != nil {
						return nil, err
					}
				}
			}
		}
		if p.at(Star) {
			edge.Variable_ = true
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.tok.Kind == Int {
				lo, err := parseIntText(p.tok.Text)
				if err != nil {
					return nil, err
				}
				edge.MinHops = &lo
				if err := p.next(); err != nil {
					return nil, err
				}
				if p.at(Range) {
					if err := p.next(); err != nil {
						return nil, err
					}
					if p.tok.Kind == Int {
						hi, err := parseIntText(p.tok.Text)
						if err != nil {
							return nil, err
						}
						edge.MaxHops = &hi
						if err := p.next(); err != nil {
							return nil, err
						}
					}
				} else {
					edge.MaxHops = edge.MinHops
				}
			} else if p.at(Range) {
				if err := p.next(); err != nil {
					return nil, err
				}
				if p.tok.Kind == Int {
					hi, err := parseIntText(p.tok.Text)
					if err != nil {
						return nil, err
					}
					edge.MaxHops = &hi
					if err := p.next(); err != nil {
						return nil, err
					}
				}
			}
		}
		if p.at(LBrace) {
			props, err := p.parseObjectLiteral()
			if err != nil {
				return nil, err
			}
			edge.Properties = props
		} else if p.at(Param) {
			edge.Properties = &ParamExpr{Name: p.tok.Text}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(RBracket); err != nil {
			return nil, err
		}
	}
	switch {
	case p.at(ArrowRight):
		if dir != DirNone {
			return nil, p.errorf("relationship pattern cannot point both directions")
		}
		edge.Direction = DirRight
		if err := p.next(); err != nil {
			return nil, err
		}
	case p.at(Minus):
		if err := p.next(); err != nil {
			return nil, err
		}
	default:
		return nil, p.errorf("expected '-' or '->' to close relationship pattern")
	}
	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	return &PatternChainLink{Edge: edge, Node: node}, nil
}

func parseIntText(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid hop count %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
