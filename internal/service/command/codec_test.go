package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Target{UserID: 1, FirstName: "Alice", UserName: "alice"}
	bob   = Target{UserID: 2, FirstName: "Bob"}
	zoe   = Target{UserID: 3, FirstName: "Zoë"}
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, cmd := range matchOrder {
		for _, target := range []*Target{&alice, &bob} {
			out, err := Encode(cmd, "Carol Admin", target)
			require.NoError(t, err)
			d, ok := Decode(out.Text, out.Entities, 99)
			require.True(t, ok, out.Text)
			assert.Equal(t, cmd, d.Command, out.Text)
			assert.Equal(t, int64(99), d.SenderID)
		}
	}
}

func TestDecodeOrderPrefersUnexclude(t *testing.T) {
	d, ok := Decode("@bob Carol re-invited you to the video chat", nil, 1)
	require.True(t, ok)
	assert.Equal(t, Unexclude, d.Command)
}

func TestDecodeUnknown(t *testing.T) {
	_, ok := Decode("see you at the video chat", nil, 1)
	assert.False(t, ok)
	_, ok = Decode("", nil, 1)
	assert.False(t, ok)
	assert.False(t, IsCommandMessage("hello"))
	assert.True(t, IsCommandMessage("Alice invited all to the video chat"))
}

func TestEncodeAddressing(t *testing.T) {
	out, err := Encode(InviteUser, "Carol", &alice)
	require.NoError(t, err)
	assert.Equal(t, "@alice Carol invited you to the video chat", out.Text)
	assert.Empty(t, out.Entities)

	out, err = Encode(Exclude, "Carol", &bob)
	require.NoError(t, err)
	assert.Equal(t, "Bob Carol will not invite you to the video chat", out.Text)
	require.Len(t, out.Entities, 1)
	assert.Equal(t, Entity{Type: EntityMentionName, Offset: 0, Length: 3, UserID: 2}, out.Entities[0])

	out, err = Encode(InviteAll, "Carol", nil)
	require.NoError(t, err)
	assert.Equal(t, "Carol invited all to the video chat", out.Text)

	_, err = Encode(InviteUser, "Carol", nil)
	assert.Error(t, err)
}

func TestEncodeRefuseMentionsRefuser(t *testing.T) {
	out, err := Encode(RefuseInvite, "Bob Smith", &bob)
	require.NoError(t, err)
	assert.Equal(t, "Bob refused to join the video chat", out.Text)

	d, ok := Decode(out.Text, out.Entities, 2)
	require.True(t, ok)
	assert.Equal(t, RefuseInvite, d.Command)
	assert.Equal(t, int64(2), d.AddressedUserID)
}

func TestEncodeBatchSplitsByAddressingMode(t *testing.T) {
	out := EncodeBatch(Exclude, "Carol", []Target{alice, bob, zoe, {UserID: 4, UserName: "dan"}, {UserID: 5}})
	require.Len(t, out, 2)

	assert.Equal(t, "@alice @dan Carol will not invite you to the video chat", out[0].Text)
	assert.Empty(t, out[0].Entities)

	assert.Equal(t, "Bob Zoë Carol will not invite you to the video chat", out[1].Text)
	assert.Equal(t, []Entity{
		{Type: EntityMentionName, Offset: 0, Length: 3, UserID: 2},
		{Type: EntityMentionName, Offset: 4, Length: 3, UserID: 3},
	}, out[1].Entities)
}

func TestIsToMe(t *testing.T) {
	self := Identity{UserID: 7, UserName: "me_too", FirstName: "Me"}

	assert.True(t, IsToMe(&Message{Text: "@Me_Too Carol invited you to the video chat"}, self))
	assert.False(t, IsToMe(&Message{Text: "@me_too2 Carol invited you to the video chat"}, self))
	assert.True(t, IsToMe(&Message{PeerUserID: 7}, self))
	assert.True(t, IsToMe(&Message{Entities: []Entity{{Type: EntityMentionName, UserID: 7}}}, self))
	assert.False(t, IsToMe(&Message{Entities: []Entity{{Type: "bold", UserID: 7}}}, self))

	noHandle := Identity{UserID: 8}
	assert.False(t, IsToMe(&Message{Text: "@ Carol invited you to the video chat"}, noHandle))
}
