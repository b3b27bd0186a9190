package normalizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/mapping"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/relation"
)

func newReconciler(tables *mapping.DatasetIDMapping, port relation.Port) *Reconciler {
	if tables == nil {
		tables = &mapping.DatasetIDMapping{}
	}
	if port == nil {
		port = relation.Static{}
	}
	return NewReconciler(tables, port, logging.NewNopLogger())
}

func TestExpandJgadRange(t *testing.T) {
	assert.Equal(t,
		[]string{"JGAD000106", "JGAD000107", "JGAD000108"},
		ExpandJgadRange("JGAD000106-JGAD000108"))

	assert.Equal(t,
		[]string{"JGAD000108-JGAD000106"},
		ExpandJgadRange("JGAD000108-JGAD000106"),
		"malformed range passes through")

	assert.Equal(t,
		[]string{"JGAD01", "JGAD02", "JGAD03"},
		ExpandJgadRange("JGAD01-JGAD000003"),
		"digit width follows the lower bound")

	assert.Equal(t, []string{"JGAD000001"}, ExpandJgadRange("JGAD000001"))
	assert.Equal(t, []string{"DRA000001"}, ExpandJgadRange("DRA000001"))
}

func TestReconcileAnnotationsAndSplit(t *testing.T) {
	r := newReconciler(nil, nil)

	ids, err := r.Reconcile(context.Background(), "hum0001", "JGAD000001データ追加、JGAD000002（新規）", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000001", "JGAD000002"}, ids)

	ids, err = r.Reconcile(context.Background(), "hum0001", "JGAD000003 Data addition", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000003"}, ids)

	ids, err = r.Reconcile(context.Background(), "hum0001", "（削除済み）", CtxGeneral)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReconcileNoSplit(t *testing.T) {
	r := newReconciler(&mapping.DatasetIDMapping{
		NoSplit: []string{"Multi token identifier"},
	}, nil)

	ids, err := r.Reconcile(context.Background(), "hum0001", "Multi token identifier", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"Multi token identifier"}, ids)
}

func TestReconcileSpecialCase(t *testing.T) {
	r := newReconciler(&mapping.DatasetIDMapping{
		SpecialCases: map[string][]string{
			"JGAD1 and others": {"JGAD000001", "JGAD000002"},
		},
	}, nil)

	ids, err := r.Reconcile(context.Background(), "hum0001", "JGAD1 and others", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000001", "JGAD000002"}, ids)
}

func TestReconcileSubstitutionChain(t *testing.T) {
	r := newReconciler(&mapping.DatasetIDMapping{
		Global:         map[string]string{"JGAD-1": "JGAD000001"},
		Publication:    map[string]string{"JGAD-1": "JGAD000002"},
		JgadTypoToJgas: map[string]string{"JGAD000114": "JGAS000114"},
		FormatToJgas:   map[string]string{"JGAX000001": "JGAS000114"},
		PerHum: map[string]map[string]string{
			"hum0002": {"localAlias": "JGAD000009"},
		},
	}, relation.Static{"JGAS000114": {"JGAD000220"}})

	ctx := context.Background()

	ids, err := r.Reconcile(ctx, "hum0001", "JGAD-1", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000001"}, ids, "global table applies in general context")

	ids, err = r.Reconcile(ctx, "hum0001", "JGAD-1", CtxPublication)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000002"}, ids, "publication table wins over global")

	ids, err = r.Reconcile(ctx, "hum0001", "JGAD000114", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000220"}, ids, "typo table redirects to the study, then expands")

	ids, err = r.Reconcile(ctx, "hum0001", "JGAX000001", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000220"}, ids, "JGAX converts to JGAS, then expands")

	ids, err = r.Reconcile(ctx, "hum0002", "localAlias", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000009"}, ids)
}

func TestReconcileStudyExpansion(t *testing.T) {
	port := relation.Static{"JGAS000114": {"JGAD000220", "JGAD000410"}}
	r := newReconciler(&mapping.DatasetIDMapping{}, port)

	// A publication cell mixing a study and a portal-local dotted ID.
	ids, err := r.Reconcile(context.Background(), "hum0014", "JGAS000114 / hum0014.v6.158k.v1", CtxPublication)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000220", "JGAD000410", "hum0014.v6.158k.v1"}, ids)
	for _, id := range ids {
		assert.NotRegexp(t, `^JGAS\d+$`, id, "no study accession survives reconciliation")
	}
}

func TestReconcileEmptyExpansionDropsStudy(t *testing.T) {
	r := newReconciler(&mapping.DatasetIDMapping{}, relation.Static{})

	ids, err := r.Reconcile(context.Background(), "hum0001", "JGAS000999", CtxGeneral)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReconcileInvalidJgasDroppedSilently(t *testing.T) {
	r := newReconciler(&mapping.DatasetIDMapping{
		InvalidJGAS: []string{"JGAS000001"},
	}, relation.Static{"JGAS000001": {"JGAD000001"}})

	ids, err := r.Reconcile(context.Background(), "hum0001", "JGAS000001 JGAD000002", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000002"}, ids)
}

func TestReconcileDenyAndIgnoreLists(t *testing.T) {
	r := newReconciler(&mapping.DatasetIDMapping{
		InvalidIDs:      []string{"JGAD000404"},
		IgnoreJgadByHum: map[string][]string{"hum0003": {"JGAD000220"}},
		AdditionalJgadByHum: map[string]map[string][]string{
			"hum0003": {"JGAS000114": {"JGAD000500"}},
		},
	}, relation.Static{"JGAS000114": {"JGAD000220", "JGAD000410"}})

	ctx := context.Background()

	ids, err := r.Reconcile(ctx, "hum0001", "JGAD000404 JGAD000001", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000001"}, ids, "invalid-ID deny list drops after expansion")

	ids, err = r.Reconcile(ctx, "hum0003", "JGAS000114", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000410", "JGAD000500"}, ids,
		"additional JGADs are unioned, ignores are applied last and win")
}

func TestReconcileJgadRangeInline(t *testing.T) {
	r := newReconciler(nil, nil)

	ids, err := r.Reconcile(context.Background(), "hum0001", "JGAD000106-JGAD000108", CtxGeneral)
	require.NoError(t, err)
	assert.Equal(t, []string{"JGAD000106", "JGAD000107", "JGAD000108"}, ids)
}
