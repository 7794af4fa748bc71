package audio

// cgo flags trimming miniaudio to the backends a desktop call needs.
// https://miniaud.io/docs/manual/index.html#Building
// add -DMA_DEBUG_OUTPUT when chasing device issues

/*
   #cgo CFLAGS: -DMA_ENABLE_ONLY_SPECIFIC_BACKENDS
   #cgo CFLAGS: -DMA_ENABLE_COREAUDIO -DMA_ENABLE_PULSEAUDIO -DMA_ENABLE_ALSA -DMA_ENABLE_JACK -DMA_ENABLE_WASAPI
   #cgo CFLAGS: -DMA_NO_DECODING -DMA_NO_ENCODING -DMA_NO_GENERATION
   #cgo CFLAGS: -DMA_NO_RESOURCE_MANAGER -DMA_NO_NODE_GRAPH -DMA_NO_ENGINE
*/
import "C"
