package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"
)

func InitTask() {
	start := time.Now()

	layerConf, ok := conf.Layers[conf.Job.Layer]
	if !ok {
		log.Fatalf("unknown layer key: %s", conf.Job.Layer)
	}
	spec := SourceLayerSpec{Name: conf.Job.Layer, Datatype: layerConf.Datatype}

	if len(conf.Job.Leftbottom) != 2 || len(conf.Job.Righttop) != 2 {
		log.Fatalf("job.leftbottom / job.righttop must be [lon, lat] pairs")
	}
	if conf.Job.Zoom < conf.Tm.Min || conf.Job.Zoom > conf.Tm.Max {
		log.Fatalf("job.zoom %d out of range [%d, %d]", conf.Job.Zoom, conf.Tm.Min, conf.Tm.Max)
	}
	bound, err := BoundFromLonLat(
		orb.Point{conf.Job.Leftbottom[0], conf.Job.Leftbottom[1]},
		orb.Point{conf.Job.Righttop[0], conf.Job.Righttop[1]})
	if err != nil {
		log.Fatalf("%s", err)
	}

	cache := NewTileCache(conf.Cache.Directory, conf.Tm.Format)
	fetcher := NewFetcher(conf.Tm.URL, conf.Task.Retries, time.Duration(conf.Task.Backoff)*time.Millisecond)

	job := JobSpec{
		Name:      conf.Tm.Name,
		Bound:     bound,
		Zoom:      maptile.Zoom(conf.Job.Zoom),
		Layer:     spec,
		Workers:   conf.Task.Workers,
		TimeDelay: time.Duration(conf.Task.Timedelay) * time.Millisecond,
	}
	task, err := NewTask(job, cache, fetcher)
	if err != nil {
		log.Fatalf("%s", err)
	}

	if conf.Output.MBTiles {
		os.MkdirAll(conf.Output.Directory, os.ModePerm)
		archive, err := NewMBTilesWriter(
			filepath.Join(conf.Output.Directory, fmt.Sprintf("%s.mbtiles", conf.Job.Layer)),
			conf.Tm.Name, conf.Tm.Format)
		if err != nil {
			log.Fatalf("open mbtiles archive error ~ %s", err)
		}
		defer archive.Close()
		task.Archive = archive
	}

	// 注册安全退出
	SafeExitInst.Register(task.Abort)

	log.Printf("zoom: %d, tiles: %d \n", conf.Job.Zoom, len(task.Index))
	bar := pb.New(len(task.Index)).Prefix(fmt.Sprintf("Zoom %d : ", conf.Job.Zoom)).Postfix("\n")
	bar.SetRefreshRate(time.Second)
	bar.Start()
	barDone := make(chan struct{})
	go func() {
		for p := range task.Progress {
			bar.Set(p)
		}
		close(barDone)
	}()

	// 开始下载
	fc, err := task.Run()
	<-barDone
	if err != nil {
		if errors.Is(err, ErrAborted) {
			bar.FinishPrint(fmt.Sprintf("Task %s got canceled.", task.ID))
			return
		}
		log.Fatalf("task %s failed ~ %s", task.ID, err)
	}
	bar.FinishPrint(fmt.Sprintf("Task %s Zoom %d finished ~", task.ID, conf.Job.Zoom))

	if conf.Job.Clip {
		fc = ClipToExtent(fc, bound.Min[0], bound.Max[0], bound.Min[1], bound.Max[1])
	}

	registry := &GeojsonFileRegistry{Dir: conf.Output.Directory}
	if err := registry.AddLayer(conf.Job.Layer, fc); err != nil {
		log.Fatalf("register layer %s error ~ %s", conf.Job.Layer, err)
	}
	log.Infof("layer %s registered, %d features", conf.Job.Layer, len(fc.Features))

	secs := time.Since(start).Seconds()
	log.Printf("\n%.3fs finished...", secs)
}

// JobState 任务状态机
type JobState int32

const (
	StateIdle JobState = iota
	StateComputingCoverage
	StateFetching
	StateMerging
	StateDone
	StateAborted
)

func (s JobState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateComputingCoverage:
		return "ComputingCoverage"
	case StateFetching:
		return "Fetching"
	case StateMerging:
		return "Merging"
	case StateDone:
		return "Done"
	case StateAborted:
		return "Aborted"
	}
	return "Unknown"
}

// ErrAborted 任务被主动中止, 已缓存瓦片保留
var ErrAborted = errors.New("job aborted")

// JobSpec 单次下载任务的全部输入
type JobSpec struct {
	Name      string
	Bound     orb.Bound // 3857
	Zoom      maptile.Zoom
	Layer     SourceLayerSpec
	Workers   int
	TimeDelay time.Duration
}

// Task 下载任务
type Task struct {
	ID      string
	Name    string
	Bound   orb.Bound
	Zoom    maptile.Zoom
	Layer   SourceLayerSpec
	Index   TileIndex
	Cache   *TileCache
	Fetcher *Fetcher
	Archive *MBTilesWriter

	// Progress 每处理完一块瓦片发一次累计值, 终值等于瓦片总数, Run 返回前关闭
	Progress chan int

	workerCount int
	timeDelay   time.Duration

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc

	tileWG  sync.WaitGroup
	workers chan struct{}

	mu        sync.Mutex
	completed int
	datasets  []*TileDataset
}

// NewTask 创建下载任务并计算瓦片覆盖
// 输入范围非法时返回 CoverageError, 不产生任何网络请求
func NewTask(job JobSpec, cache *TileCache, fetcher *Fetcher) (*Task, error) {
	id, _ := shortid.Generate()

	task := &Task{
		ID:      id,
		Name:    job.Name,
		Bound:   job.Bound,
		Zoom:    job.Zoom,
		Layer:   job.Layer,
		Cache:   cache,
		Fetcher: fetcher,

		workerCount: job.Workers,
		timeDelay:   job.TimeDelay,
	}
	if task.workerCount < 1 {
		task.workerCount = 1
	}

	task.setState(StateComputingCoverage)
	index, err := CoverBound(job.Bound, job.Zoom)
	if err != nil {
		return nil, err
	}
	task.Index = index

	// 缓冲区容量等于瓦片总数, 进度发送永不阻塞
	task.Progress = make(chan int, len(index))
	task.workers = make(chan struct{}, task.workerCount)
	task.ctx, task.cancel = context.WithCancel(context.Background())

	return task, nil
}

// State 当前状态
func (task *Task) State() JobState {
	return JobState(task.state.Load())
}

func (task *Task) setState(s JobState) {
	task.state.Store(int32(s))
}

// Abort 协作式中止: 不再发起新请求, 丢弃未合并结果, 缓存保留
func (task *Task) Abort() {
	task.cancel()
}

// Run 执行任务直至终态, 成功返回合并后的数据集
// 每个任务只能 Run 一次
func (task *Task) Run() (*geojson.FeatureCollection, error) {
	defer close(task.Progress)
	defer task.cancel()

	task.setState(StateFetching)
	for _, t := range task.Index {
		select {
		case <-task.ctx.Done():
		case task.workers <- struct{}{}:
			// 请求发送间隔
			if task.timeDelay > 0 {
				time.Sleep(task.timeDelay)
			}
			task.tileWG.Add(1)
			go task.processTile(t)
		}
		if task.ctx.Err() != nil {
			break
		}
	}
	task.tileWG.Wait()

	if task.ctx.Err() != nil {
		task.setState(StateAborted)
		log.Infof("Task %s got canceled.", task.Name)
		return nil, ErrAborted
	}

	task.setState(StateMerging)
	task.mu.Lock()
	datasets := task.datasets
	task.mu.Unlock()
	fc, err := MergeDatasets(datasets, task.Layer.GeometryType())
	if err != nil {
		task.setState(StateAborted)
		return nil, err
	}

	task.setState(StateDone)
	return fc, nil
}

// processTile 单瓦片流水线: 缓存 -> 下载 -> 解析 -> 累积
// 任何失败只损失当前瓦片
func (task *Task) processTile(t maptile.Tile) {
	start := time.Now()
	// workers完成并清退
	defer func() {
		task.tileWG.Done()
		<-task.workers
	}()

	raw, err := task.loadTile(t)
	if err != nil {
		if task.ctx.Err() != nil {
			return
		}
		log.Debugf("%s ~", err)
		task.tileDone(nil)
		return
	}

	ds, err := DecodeTile(raw, t, task.Layer)
	if err != nil {
		log.Debugf("%s ~", err)
		task.tileDone(nil)
		return
	}

	cost := time.Since(start).Milliseconds()
	log.Debugf("tile(z:%d, x:%d, y:%d), %dms, %.2f kb, %d features ...", t.Z, t.X, t.Y, cost, float32(len(raw))/1024.0, len(ds.Features))
	task.tileDone(ds)
}

// loadTile 取瓦片字节, 缓存命中则跳过网络
func (task *Task) loadTile(t maptile.Tile) ([]byte, error) {
	if task.Cache.Exists(t) {
		raw, err := task.Cache.Read(t)
		if err == nil {
			task.archiveTile(t, raw)
			return raw, nil
		}
		log.Warnf("cache read %s error: %s, refetching", task.Cache.PathFor(t), err)
	}

	raw, err := task.Fetcher.Fetch(task.ctx, t)
	if err != nil {
		return nil, err
	}
	if err := task.Cache.Store(t, raw); err != nil {
		log.Errorf("create %v tile file error ~ %s", t, err)
	}
	task.archiveTile(t, raw)
	return raw, nil
}

func (task *Task) archiveTile(t maptile.Tile, raw []byte) {
	if task.Archive == nil {
		return
	}
	if err := task.Archive.WriteTile(Tile{T: t, C: raw}); err != nil {
		log.Errorf("%s ~", err)
	}
}

// tileDone 累积结果并推进进度, 锁内发送保证计数单调
func (task *Task) tileDone(ds *TileDataset) {
	task.mu.Lock()
	defer task.mu.Unlock()
	if ds != nil && len(ds.Features) > 0 {
		task.datasets = append(task.datasets, ds)
	}
	task.completed++
	task.Progress <- task.completed
}
