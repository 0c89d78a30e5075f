package relation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profilesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "service-name": {"type": "string"},
    "service-port": {"type": "string"}
  },
  "required": ["service-name", "service-port"]
}`

func newTestNegotiator(t *testing.T) *Negotiator {
	t.Helper()
	n, err := NewNegotiator(map[string]map[string][]byte{
		"kubeflow-profiles": {
			"v1": []byte(profilesSchema),
			"v2": []byte(profilesSchema),
		},
	})
	require.NoError(t, err)
	return n
}

func profilesRelation(id string, data map[string]string) Relation {
	return Relation{ID: id, Endpoint: "kubeflow-profiles", App: "kubeflow-profiles", Data: data}
}

func TestGetInterfaces(t *testing.T) {
	t.Parallel()

	t.Run("no relation yields nil interface", func(t *testing.T) {
		t.Parallel()
		interfaces, err := newTestNegotiator(t).GetInterfaces(nil)

		require.NoError(t, err)
		require.Contains(t, interfaces, "kubeflow-profiles")
		assert.Nil(t, interfaces["kubeflow-profiles"])
	})

	t.Run("relations on other endpoints are ignored", func(t *testing.T) {
		t.Parallel()
		interfaces, err := newTestNegotiator(t).GetInterfaces([]Relation{{ID: "links-1", Endpoint: "links", App: "jupyter"}})

		require.NoError(t, err)
		assert.Nil(t, interfaces["kubeflow-profiles"])
	})

	t.Run("no versions listed", func(t *testing.T) {
		t.Parallel()
		_, err := newTestNegotiator(t).GetInterfaces([]Relation{profilesRelation("p-1", nil)})

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoVersionsListed))
		var negErr *NegotiationError
		require.ErrorAs(t, err, &negErr)
		assert.Equal(t, "p-1", negErr.RelationID)
	})

	t.Run("empty version list", func(t *testing.T) {
		t.Parallel()
		_, err := newTestNegotiator(t).GetInterfaces([]Relation{profilesRelation("p-1", map[string]string{SupportedVersionsKey: "[]"})})

		assert.ErrorIs(t, err, ErrNoVersionsListed)
	})

	t.Run("no compatible versions", func(t *testing.T) {
		t.Parallel()
		_, err := newTestNegotiator(t).GetInterfaces([]Relation{profilesRelation("p-1", map[string]string{SupportedVersionsKey: "- v9\n"})})

		assert.ErrorIs(t, err, ErrNoCompatibleVersions)
		assert.NotErrorIs(t, err, ErrNoVersionsListed)
	})

	t.Run("highest common version wins", func(t *testing.T) {
		t.Parallel()
		interfaces, err := newTestNegotiator(t).GetInterfaces([]Relation{
			profilesRelation("p-1", map[string]string{SupportedVersionsKey: "- v1\n- v2\n"}),
		})

		require.NoError(t, err)
		require.NotNil(t, interfaces["kubeflow-profiles"])
		assert.Equal(t, "v2", interfaces["kubeflow-profiles"].Version)
	})

	t.Run("version must be common to every peer", func(t *testing.T) {
		t.Parallel()
		interfaces, err := newTestNegotiator(t).GetInterfaces([]Relation{
			profilesRelation("p-2", map[string]string{SupportedVersionsKey: "- v1\n"}),
			profilesRelation("p-1", map[string]string{SupportedVersionsKey: "- v1\n- v2\n"}),
		})

		require.NoError(t, err)
		assert.Equal(t, "v1", interfaces["kubeflow-profiles"].Version)
		assert.Len(t, interfaces["kubeflow-profiles"].Relations(), 2)
		assert.Equal(t, "p-1", interfaces["kubeflow-profiles"].Relations()[0].ID)
	})
}

func TestInterfaceGetData(t *testing.T) {
	t.Parallel()

	versions := map[string]string{SupportedVersionsKey: "- v1\n"}
	withData := func(data string) map[string]string {
		return map[string]string{SupportedVersionsKey: "- v1\n", DataKey: data}
	}

	t.Run("valid data", func(t *testing.T) {
		t.Parallel()
		interfaces, err := newTestNegotiator(t).GetInterfaces([]Relation{
			profilesRelation("p-1", withData("service-name: kfam\nservice-port: '8081'\n")),
		})
		require.NoError(t, err)

		data, err := interfaces["kubeflow-profiles"].GetData()

		require.NoError(t, err)
		require.Contains(t, data, "p-1")
		assert.Equal(t, "kfam", data["p-1"].String("service-name"))
		assert.Equal(t, "8081", data["p-1"].String("service-port"))
		assert.Equal(t, "", data["p-1"].String("missing"))
	})

	t.Run("unpublished data is absent", func(t *testing.T) {
		t.Parallel()
		interfaces, err := newTestNegotiator(t).GetInterfaces([]Relation{profilesRelation("p-1", versions)})
		require.NoError(t, err)

		data, err := interfaces["kubeflow-profiles"].GetData()

		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("data violating the schema", func(t *testing.T) {
		t.Parallel()
		interfaces, err := newTestNegotiator(t).GetInterfaces([]Relation{
			profilesRelation("p-1", withData("service-name: kfam\n")),
		})
		require.NoError(t, err)

		_, err = interfaces["kubeflow-profiles"].GetData()

		assert.Error(t, err)
	})
}

func TestNewNegotiatorRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := NewNegotiator(map[string]map[string][]byte{"x": {"v1": []byte("{not json")}})
	assert.Error(t, err)

	_, err = NewNegotiator(map[string]map[string][]byte{"x": {"latest": []byte(profilesSchema)}})
	assert.Error(t, err)
}
