package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/classr/internal/archive"
	"github.com/yungbote/classr/internal/data/repos"
	"github.com/yungbote/classr/internal/data/repos/testutil"
	types "github.com/yungbote/classr/internal/domain"
	httpH "github.com/yungbote/classr/internal/http/handlers"
	"github.com/yungbote/classr/internal/jobs/autosync"
	"github.com/yungbote/classr/internal/jobs/dispatch"
	"github.com/yungbote/classr/internal/models"
	"github.com/yungbote/classr/internal/observability"
	"github.com/yungbote/classr/internal/remote"
	"github.com/yungbote/classr/internal/services"
)

const testKey = "k3y"

type node struct {
	root        string
	srv         *httptest.Server
	dispatcher  *dispatch.Dispatcher
	resources   *services.ResourceService
	jobs        *services.JobService
	classifiers *services.ClassifierService
}

type nodeOptions struct {
	apiKey        string
	allowDownload bool
}

func newNode(t *testing.T, opts nodeOptions) *node {
	t.Helper()
	gin.SetMode(gin.TestMode)
	root := t.TempDir()
	log := testutil.Logger(t)
	paths := services.Paths{
		ResourcesRoot: filepath.Join(root, "resources"),
		WorkRoot:      filepath.Join(root, "jobs"),
		TempDir:       filepath.Join(root, "tmp"),
	}
	require.NoError(t, paths.Ensure())

	r := repos.New(testutil.DB(t), log)
	d := dispatch.New(2, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	jobs := services.NewJobService(log, r.Jobs, paths.WorkRoot)
	resources := services.NewResourceService(log, r.Resources, paths)
	classifiers := services.NewClassifierService(log, services.ClassifierServiceDeps{
		Classifiers: r.Classifiers,
		Resources:   r.Resources,
		Jobs:        jobs,
		Dispatcher:  d,
		Registry:    models.NewDefaultRegistry(),
	}, services.ClassifierOptions{EnableTraining: true, EnableClassification: true})

	engine := NewRouter(RouterConfig{
		Log: log,
		RPCHandler: httpH.NewRPCHandler(httpH.RPCHandlerDeps{
			Log: log, Classifiers: classifiers, Jobs: jobs, Resources: resources,
		}),
		ResourceHandler: httpH.NewResourceHandler(httpH.ResourceHandlerDeps{
			Log: log, Resources: resources, TempDir: paths.TempDir, AllowDownload: opts.allowDownload,
		}),
		JobHandler: httpH.NewJobHandler(httpH.JobHandlerDeps{
			Log: log, Jobs: jobs, Classifiers: classifiers, TempDir: paths.TempDir,
		}),
		HealthHandler: httpH.NewHealthHandler(nil),
		APIKey:        opts.apiKey,
		Metrics:       observability.NewMetrics(),
	})
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &node{root: root, srv: srv, dispatcher: d, resources: resources, jobs: jobs, classifiers: classifiers}
}

func (n *node) client(t *testing.T, key string) *remote.Client {
	t.Helper()
	c, err := remote.New(remote.Options{URL: n.srv.URL + "/api", APIKey: key, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func (n *node) rpc(t *testing.T, method string, params any) remote.Response {
	t.Helper()
	req := remote.Request{JSONRPC: remote.Version, Method: method, ID: "1"}
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		req.Params = raw
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq, err := http.NewRequest(http.MethodPost, n.srv.URL+"/api", bytes.NewReader(body))
	require.NoError(t, err)
	httpReq.SetBasicAuth(remote.APIUser, testKey)
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out remote.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "1", out.ID)
	return out
}

func (n *node) upload(t *testing.T, path string, fields map[string]string, filePath string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(filePath))
	require.NoError(t, err)
	f, err := os.Open(filePath)
	require.NoError(t, err)
	_, err = io.Copy(fw, f)
	_ = f.Close()
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, n.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(remote.APIUser, testKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func vocabArchive(t *testing.T, dir, arcName string) string {
	t.Helper()
	src := filepath.Join(dir, "src-"+arcName)
	writeFile(t, filepath.Join(src, "keywords.csv"), "keyword,class\nprinter,HARDWARE\npassword,ACCOUNT\n")
	out := filepath.Join(dir, arcName+".tar.gz")
	require.NoError(t, archive.Pack(src, out, arcName))
	return out
}

// seedTrained installs vocab resource r1 and a trained, enabled KEYWORD classifier c1.
func (n *node) seedTrained(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := n.resources.AddFromTarGz(ctx, services.AddResourceRequest{UID: "r1", Type: "vocab", Title: "vocab"}, vocabArchive(t, n.root, "vocab-r1"))
	require.NoError(t, err)
	_, err = n.classifiers.Create(ctx, services.CreateClassifierRequest{
		UID: "c1", ModelType: models.KeywordType, Title: "tickets", Enabled: true,
		Resources: map[string]string{"vocab": "r1"},
	})
	require.NoError(t, err)
	_, err = n.classifiers.Train(ctx, "c1", services.TrainRequest{})
	require.NoError(t, err)
	n.dispatcher.Wait()
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	n := newNode(t, nodeOptions{apiKey: testKey})

	resp, err := http.Get(n.srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(n.srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `classr_api_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestAPIRequiresKey(t *testing.T) {
	n := newNode(t, nodeOptions{apiKey: testKey})

	_, err := n.client(t, "wrong").GetAllClassifiers(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRemote)
	assert.Contains(t, err.Error(), "API-key verification failed")

	got, err := n.client(t, testKey).GetAllClassifiers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRPCMethods(t *testing.T) {
	n := newNode(t, nodeOptions{apiKey: testKey})
	n.seedTrained(t)
	c := n.client(t, testKey)
	ctx := context.Background()

	got, err := c.GetClassifier(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.ClassifierReady, got.State)
	assert.Equal(t, map[string]string{"vocab": "r1"}, got.Resources)

	missing, err := c.GetClassifier(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	res, err := c.GetResource(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "vocab", res.ResourceType)

	resp := n.rpc(t, remote.MethodClassifierDisable, remote.UIDParams{UID: "c1"})
	require.Nil(t, resp.Error)
	cl, err := n.classifiers.Get(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, cl.Enabled)

	resp = n.rpc(t, remote.MethodClassifierTrain, remote.UIDParams{UID: "c1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, remote.CodeInvalidParams, resp.Error.Code, "already trained")

	resp = n.rpc(t, remote.MethodResourceDelete, remote.UIDParams{UID: "r1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, remote.CodeServer, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, types.ErrHasDependents.Error())

	resp = n.rpc(t, "classifier.explode", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, remote.CodeMethodNotFound, resp.Error.Code)

	resp = n.rpc(t, remote.MethodJobGetStatus, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, remote.CodeInvalidParams, resp.Error.Code)

	resp = n.rpc(t, remote.MethodJobGetStatus, remote.UIDParams{UID: "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, remote.CodeNotFound, resp.Error.Code)

	resp = n.rpc(t, remote.MethodJobGetAll, nil)
	require.Nil(t, resp.Error)
	var jobs []types.Job
	require.NoError(t, json.Unmarshal(resp.Result, &jobs))
	require.Len(t, jobs, 1)

	resp = n.rpc(t, remote.MethodClassifierDelete, remote.UIDParams{UID: "c1"})
	require.Nil(t, resp.Error)
	resp = n.rpc(t, remote.MethodResourceDelete, remote.UIDParams{UID: "r1"})
	require.Nil(t, resp.Error)
	resp = n.rpc(t, remote.MethodResourceGetAll, nil)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `[]`, string(resp.Result))
}

func TestRPCPositionalParams(t *testing.T) {
	n := newNode(t, nodeOptions{apiKey: testKey})
	n.seedTrained(t)

	resp := n.rpc(t, remote.MethodResourceGet, []string{"r1"})
	require.Nil(t, resp.Error)
	var res types.Resource
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	assert.Equal(t, "r1", res.UID)

	resp = n.rpc(t, remote.MethodClassifierDisable, []string{"c1"})
	require.Nil(t, resp.Error)
	cl, err := n.classifiers.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, cl.Enabled)

	resp = n.rpc(t, remote.MethodClassifierTrain, []string{"c1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, remote.CodeInvalidParams, resp.Error.Code, "already trained")

	resp = n.rpc(t, remote.MethodResourceGet, []string{"r1", "extra"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, remote.CodeInvalidParams, resp.Error.Code)

	resp = n.rpc(t, remote.MethodResourceGet, []string{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, remote.CodeInvalidParams, resp.Error.Code)
}

func TestPlaceJobAndDownload(t *testing.T) {
	n := newNode(t, nodeOptions{apiKey: testKey})
	n.seedTrained(t)

	in := writeFile(t, filepath.Join(n.root, "tickets.csv"), "id,desc\n1,Printer jam\n2,forgot password\n")
	resp := n.upload(t, "/api/job.place", map[string]string{
		"classifierUid": "c1",
		"inDescCol":     "desc",
		"outClassCol":   "class",
	}, in)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var placed struct {
		UID string `json:"uid"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placed))
	require.NotEmpty(t, placed.UID)
	n.dispatcher.Wait()

	st := n.rpc(t, remote.MethodJobGetStatus, remote.UIDParams{UID: placed.UID})
	require.Nil(t, st.Error)
	var view types.JobView
	require.NoError(t, json.Unmarshal(st.Result, &view))
	assert.Equal(t, types.JobDone, view.Status)
	assert.Equal(t, 100, view.ProgressPercentage)

	req, err := http.NewRequest(http.MethodGet, n.srv.URL+"/api/job.download/"+placed.UID, nil)
	require.NoError(t, err)
	req.SetBasicAuth(remote.APIUser, testKey)
	dl, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Contains(t, dl.Header.Get("Content-Disposition"), placed.UID+".csv")
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "id,desc,class\n1,Printer jam,HARDWARE\n2,forgot password,ACCOUNT\n", string(body))

	resp = n.upload(t, "/api/job.place", map[string]string{"classifierUid": "nope", "inDescCol": "desc", "outClassCol": "class"}, in)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = n.upload(t, "/api/job.place", map[string]string{"inDescCol": "desc"}, in)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadResource(t *testing.T) {
	n := newNode(t, nodeOptions{apiKey: testKey})
	ctx := context.Background()

	gz := vocabArchive(t, n.root, "bundle")
	resp := n.upload(t, "/api/resource.upload", map[string]string{"resourceType": "vocab", "resourceTitle": "kw", "resourceUid": "r9"}, gz)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res, err := n.resources.Get(ctx, "r9")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.FileExists(t, filepath.Join(res.Path, "bundle", "keywords.csv"))

	plain := writeFile(t, filepath.Join(n.root, "weights.bin"), "w")
	resp = n.upload(t, "/api/resource.upload", map[string]string{"resourceType": "model"}, plain)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		UID string `json:"uid"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	res, err = n.resources.Get(ctx, out.UID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.FileExists(t, filepath.Join(res.Path, "weights.bin"))

	resp = n.upload(t, "/api/resource.upload", map[string]string{"resourceType": "vocab", "resourceUid": "r9"}, gz)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDownloadDisabled(t *testing.T) {
	n := newNode(t, nodeOptions{apiKey: testKey})
	n.seedTrained(t)

	var buf bytes.Buffer
	err := n.client(t, testKey).DownloadResource(context.Background(), "r1", &buf)
	require.Error(t, err)
	var httpErr *remote.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
}

func TestReplicationBetweenNodes(t *testing.T) {
	src := newNode(t, nodeOptions{apiKey: testKey, allowDownload: true})
	src.seedTrained(t)
	dst := newNode(t, nodeOptions{})

	agent := autosync.New(testutil.Logger(t), src.client(t, testKey), dst.resources, dst.classifiers, autosync.Options{
		Name:          "src",
		AcceptedTypes: []string{models.KeywordType},
		TempDir:       filepath.Join(dst.root, "tmp"),
	})
	rep, err := agent.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, rep.Synced)
	assert.Equal(t, []string{"r1"}, rep.Resources)
	assert.Empty(t, rep.Failed)

	ctx := context.Background()
	c, err := dst.classifiers.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.Trained())
	res, err := dst.resources.Get(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.FileExists(t, filepath.Join(res.Path, "keywords.csv"))

	in := writeFile(t, filepath.Join(dst.root, "in.csv"), "desc\nprinter on fire\n")
	jobUID, err := dst.classifiers.Classify(ctx, "c1", services.ClassifyRequest{InputPath: in, DescCol: "desc", OutClassCol: "class"})
	require.NoError(t, err)
	dst.dispatcher.Wait()
	out, err := dst.jobs.OutputPath(ctx, jobUID)
	require.NoError(t, err)
	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(body), "printer on fire,HARDWARE\n"), string(body))

	rep, err = agent.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Candidates, "already replicated")
}
