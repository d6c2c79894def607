package profiles

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"github.com/rm-hull/hideaway/internal/nanomdm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const device = "00008030-001A2B3C4D5E802E"

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, cmd *nanomdm.Command, ids ...string) (*nanomdm.APIResult, error) {
	args := m.Called(cmd.Command.RequestType, ids)
	result, _ := args.Get(0).(*nanomdm.APIResult)
	return result, args.Error(1)
}

type mockClient struct {
	mockEnqueuer
}

func (m *mockClient) Push(ctx context.Context, ids ...string) (*nanomdm.APIResult, error) {
	args := m.Called(ids)
	result, _ := args.Get(0).(*nanomdm.APIResult)
	return result, args.Error(1)
}

func TestDelivery_InstallOffline(t *testing.T) {
	assert := assert.New(t)
	composer := newComposer(t, Options{})
	dir := t.TempDir()
	delivery := NewDelivery(composer, nil, dir, discard)

	profile, err := composer.Preset("Work Focus")
	require.NoError(t, err)

	receipt, err := delivery.Install(context.Background(), profile, device)
	require.NoError(t, err)
	assert.True(receipt.Offline())
	assert.Equal(filepath.Join(dir, "workfocus.mobileconfig"), receipt.Path)

	written, err := mobileconfig.ReadFile(receipt.Path)
	require.NoError(t, err)
	assert.Equal(profile.PayloadUUID, written.PayloadUUID)
}

func TestDelivery_RemoveOffline(t *testing.T) {
	composer := newComposer(t, Options{})
	dir := t.TempDir()
	delivery := NewDelivery(composer, nil, dir, discard)

	receipt, err := delivery.Remove(context.Background(), composer.Identifier("Work Focus"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, RemovalFileName), receipt.Path)

	written, err := mobileconfig.ReadFile(receipt.Path)
	require.NoError(t, err)
	assert.True(t, written.IsRemoval())
}

func TestDelivery_InstallViaNanoMDM(t *testing.T) {
	assert := assert.New(t)
	client := new(mockEnqueuer)
	client.On("Enqueue", nanomdm.InstallProfile, []string{device}).Return(&nanomdm.APIResult{
		Status: map[string]nanomdm.EnrollmentResult{device: {PushResult: "ok"}},
	}, nil).Once()

	composer := newComposer(t, Options{})
	delivery := NewDelivery(composer, client, t.TempDir(), discard)

	profile, err := composer.BlockNamed("Study Mode", []string{"Instagram"})
	require.NoError(t, err)

	receipt, err := delivery.Install(context.Background(), profile, device)
	require.NoError(t, err)
	assert.False(receipt.Offline())
	assert.Equal("com.hideaway.studymode", receipt.Identifier)
	assert.Equal(nanomdm.InstallProfile, receipt.RequestType)
	assert.NotEmpty(receipt.CommandUUID)
	assert.Equal("ok", receipt.Result.Status[device].PushResult)
	client.AssertExpectations(t)
}

func TestDelivery_RemoveViaNanoMDM(t *testing.T) {
	client := new(mockEnqueuer)
	client.On("Enqueue", nanomdm.RemoveProfile, []string{device}).Return(&nanomdm.APIResult{}, nil).Once()

	delivery := NewDelivery(newComposer(t, Options{}), client, "", discard)

	receipt, err := delivery.Remove(context.Background(), "com.hideaway.studymode", device)
	require.NoError(t, err)
	assert.Equal(t, nanomdm.RemoveProfile, receipt.RequestType)
	assert.Equal(t, []string{device}, receipt.Devices)
	client.AssertExpectations(t)
}

func TestDelivery_EnqueueFailure(t *testing.T) {
	client := new(mockEnqueuer)
	client.On("Enqueue", nanomdm.RemoveProfile, []string{device}).Return(nil, errors.New("connection refused"))

	delivery := NewDelivery(newComposer(t, Options{}), client, "", discard)

	_, err := delivery.Remove(context.Background(), "com.hideaway.studymode", device)
	assert.ErrorContains(t, err, "connection refused")
}

func TestDelivery_RefusesInvalidProfile(t *testing.T) {
	client := new(mockEnqueuer)
	delivery := NewDelivery(newComposer(t, Options{}), client, "", discard)

	profile, err := mobileconfig.Assemble(mobileconfig.Metadata{DisplayName: "Broken"})
	require.NoError(t, err)
	profile.PayloadVersion = 2

	_, err = delivery.Install(context.Background(), profile, device)
	assert.ErrorContains(t, err, "refusing to deliver")
	client.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestDelivery_Ping(t *testing.T) {
	assert := assert.New(t)
	client := new(mockClient)
	client.On("Push", []string{device}).Return(&nanomdm.APIResult{
		Status: map[string]nanomdm.EnrollmentResult{device: {PushResult: "apns-id"}},
	}, nil).Once()

	delivery := NewDelivery(newComposer(t, Options{}), client, "", discard)

	result, err := delivery.Ping(context.Background(), device)
	require.NoError(t, err)
	assert.Equal("apns-id", result.Status[device].PushResult)

	_, err = delivery.Ping(context.Background())
	assert.Error(err)
	client.AssertExpectations(t)
}

func TestDelivery_PingNeedsPushingClient(t *testing.T) {
	_, err := NewDelivery(newComposer(t, Options{}), nil, "", discard).Ping(context.Background(), device)
	assert.True(t, errors.Is(err, ErrOffline))

	_, err = NewDelivery(newComposer(t, Options{}), new(mockEnqueuer), "", discard).Ping(context.Background(), device)
	assert.True(t, errors.Is(err, ErrOffline))
}

func TestDelivery_ListProfiles(t *testing.T) {
	assert := assert.New(t)
	client := new(mockEnqueuer)
	client.On("Enqueue", nanomdm.ProfileList, []string{device}).Return(&nanomdm.APIResult{}, nil).Once()

	delivery := NewDelivery(newComposer(t, Options{}), client, "", discard)

	receipt, err := delivery.ListProfiles(context.Background(), device)
	require.NoError(t, err)
	assert.Equal(nanomdm.ProfileList, receipt.RequestType)
	assert.Empty(receipt.Identifier)
	client.AssertExpectations(t)

	_, err = NewDelivery(newComposer(t, Options{}), nil, "", discard).ListProfiles(context.Background(), device)
	assert.True(errors.Is(err, ErrOffline))
}
