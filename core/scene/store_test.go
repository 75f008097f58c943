package scene_test

import (
	"testing"

	"github.com/m3rciful/gostage/core/scene"
	"github.com/m3rciful/gostage/core/scene/scenetest"
)

func TestMemoryStoreContract(t *testing.T) {
	scenetest.RunStoreContract(t, func(*testing.T) scene.Store { return scene.NewMemoryStore() })
}
