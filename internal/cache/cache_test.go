package cache

import (
	"testing"
	"time"

	"github.com/grussorusso/offloadledge/utils"
)

func TestLRUReplacement(t *testing.T) {
	tc := New[int](DefaultExpiration, 0, 2)

	tc.Set("a", 1, DefaultExpiration)
	time.Sleep(time.Millisecond)
	tc.Set("b", 2, DefaultExpiration)
	time.Sleep(time.Millisecond)
	// touch a, so that b becomes the least recently used
	_, found := tc.Get("a")
	utils.AssertTrue(t, found)
	time.Sleep(time.Millisecond)
	tc.Set("c", 3, DefaultExpiration)

	_, found = tc.Get("b")
	utils.AssertFalseMsg(t, found, "b should have been replaced")
	v, found := tc.Get("a")
	utils.AssertTrue(t, found)
	utils.AssertEquals(t, 1, v)
	v, found = tc.Get("c")
	utils.AssertTrue(t, found)
	utils.AssertEquals(t, 3, v)
	utils.AssertEquals(t, 2, tc.Len())
}

func TestReplaceExistingKeyDoesNotEvict(t *testing.T) {
	tc := New[string](DefaultExpiration, 0, 2)
	tc.Set("a", "x", DefaultExpiration)
	tc.Set("b", "y", DefaultExpiration)
	tc.Set("a", "z", DefaultExpiration)

	v, found := tc.Get("a")
	utils.AssertTrue(t, found)
	utils.AssertEquals(t, "z", v)
	_, found = tc.Get("b")
	utils.AssertTrue(t, found)
}

func TestExpirationAndJanitor(t *testing.T) {
	tc := New[int](50*time.Millisecond, 20*time.Millisecond, 10)
	tc.Set("short", 1, DefaultExpiration)
	tc.Set("forever", 2, NoExpiration)

	time.Sleep(150 * time.Millisecond)

	_, found := tc.Get("short")
	utils.AssertFalseMsg(t, found, "short should have expired")
	_, found = tc.Get("forever")
	utils.AssertTrue(t, found)
	utils.AssertEquals(t, 1, tc.Len())
}
