package secret

import (
	"context"
	"testing"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/suite"
)

type SecretSuite struct {
	suite.Suite
}

func TestSecretSuite(t *testing.T) {
	suite.Run(t, new(SecretSuite))
}

func (s *SecretSuite) TestParse() {
	ref, err := Parse("secret://env/OPENAI_API_KEY")
	s.Require().NoError(err)
	s.Equal("env", ref.Provider)
	s.Equal([]string{"OPENAI_API_KEY"}, ref.Segments)
}

func (s *SecretSuite) TestParseRejectsOtherSchemes() {
	_, err := Parse("https://example.com/key")
	s.Require().Error(err)
}

func (s *SecretSuite) TestEnvResolver() {
	s.T().Setenv("KASAL_TEST_TOKEN", "abc123")

	r := NewEnvResolver()
	value, err := r.Resolve(context.Background(), "secret://env/KASAL_TEST_TOKEN")
	s.Require().NoError(err)
	s.Equal("abc123", value)
}

func (s *SecretSuite) TestEnvResolverSegmentsJoin() {
	s.T().Setenv("APP_DB_PASSWORD", "s3cr3t")

	r := NewEnvResolver()
	value, err := r.Resolve(context.Background(), "secret://env/APP/DB/PASSWORD")
	s.Require().NoError(err)
	s.Equal("s3cr3t", value)
}

func (s *SecretSuite) TestResolveValuePassthrough() {
	value, err := ResolveValue(context.Background(), nil, "plain-token")
	s.Require().NoError(err)
	s.Equal("plain-token", value)
}

type fakeLogical struct {
	secrets map[string]*vault.Secret
}

func (f *fakeLogical) ReadWithContext(_ context.Context, path string) (*vault.Secret, error) {
	return f.secrets[path], nil
}

func (s *SecretSuite) TestVaultResolverKVv2() {
	logical := &fakeLogical{secrets: map[string]*vault.Secret{
		"kv/data/kasal": {Data: map[string]any{
			"data": map[string]any{"token": "vault-token"},
		}},
	}}

	r := NewVaultResolverWithLogical(logical)
	value, err := r.Resolve(context.Background(), "secret://vault/kv/data/kasal?field=token")
	s.Require().NoError(err)
	s.Equal("vault-token", value)
}

func (s *SecretSuite) TestMultiResolverUnknownProvider() {
	m := NewMultiResolver(map[string]Resolver{providerEnv: NewEnvResolver()})
	_, err := m.Resolve(context.Background(), "secret://vault/kv/data/kasal?field=token")
	s.Require().Error(err)
}
