package cypher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/cyql/cypher"
)

func TestLexer_Tokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		src   string
		kinds []cypher.Kind
	}{
		{
			name:  "identifiers and punctuation",
			src:   "(a:Person {name: 'Alice'})",
			kinds: []cypher.Kind{cypher.LParen, cypher.Ident, cypher.Colon, cypher.Ident, cypher.LBrace, cypher.Ident, cypher.Colon, cypher.String, cypher.RBrace, cypher.RParen, cypher.EOF},
		},
		{
			name:  "parameter and arrow",
			src:   "$name ->",
			kinds: []cypher.Kind{cypher.Param, cypher.ArrowRight, cypher.EOF},
		},
		{
			name:  "numbers",
			src:   "1 2.5 -3",
			kinds: []cypher.Kind{cypher.Int, cypher.Float, cypher.Minus, cypher.Int, cypher.EOF},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lex := cypher.NewLexer(tt.src)
			var got []cypher.Kind
			for {
				tok, err := lex.Next()
				require.NoError(t, err)
				got = append(got, tok.Kind)
				if tok.Kind == cypher.EOF {
					break
				}
			}
			assert.Equal(t, tt.kinds, got)
		})
	}
}

func TestLexer_UnterminatedString(t *testing.T) {
	t.Parallel()

	lex := cypher.NewLexer(`'unterminated`)
	_, err := lex.Next()
	require.Error(t, err)

	var lexErr *cypher.LexError
	require.ErrorAs(t, err, &lexErr)
	assert.Contains(t, lexErr.Msg, "unterminated")
}
